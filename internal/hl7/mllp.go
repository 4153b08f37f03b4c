package hl7

import (
	"bufio"
	"bytes"
	"fmt"
)

// ReadFrame reads one MLLP frame (<VT>payload<FS><CR>) and returns the
// payload. Bytes before the start block are discarded.
func ReadFrame(reader *bufio.Reader) ([]byte, error) {
	// Wait for start block
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == StartBlock {
			break
		}
	}

	var buffer bytes.Buffer
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}

		if b == EndBlock {
			cr, err := reader.ReadByte()
			if err != nil {
				return nil, err
			}
			if cr != CarriageReturn {
				return nil, fmt.Errorf("MLLP formatı hatası: CR beklendi, %02X alındı", cr)
			}
			return buffer.Bytes(), nil
		}

		buffer.WriteByte(b)
	}
}
