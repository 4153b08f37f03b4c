package hl7

// ACK codes (MSA-1)
const (
	AckAccept = "AA"
	AckError  = "AE"
	AckReject = "AR"
)

// CreateACK builds an MLLP-wrapped ACK for original. Sender and receiver
// are swapped and MSA-2 echoes the original control ID.
func CreateACK(original *Message, ackCode, text string) []byte {
	msa := []string{ackCode, original.MessageControlID}
	if text != "" {
		msa = append(msa, Escape(text, original.Delimiters))
	}

	ack := &Message{
		MessageType:          TypeACK,
		TriggerEvent:         original.TriggerEvent,
		SendingApplication:   original.ReceivingApplication,
		SendingFacility:      original.ReceivingFacility,
		ReceivingApplication: original.SendingApplication,
		ReceivingFacility:    original.SendingFacility,
		Version:              original.Version,
		Delimiters:           original.Delimiters,
		Segments:             []Segment{{Type: "MSA", Fields: msa}},
	}

	return WrapMLLP([]byte(GenerateMessage(ack)))
}

// AckCode returns MSA-1 of an ACK message, or "" when it has no MSA.
func AckCode(ack *Message) string {
	msa, ok := ack.Segment("MSA")
	if !ok {
		return ""
	}
	return msa.Field(1)
}
