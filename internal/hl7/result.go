package hl7

import "fmt"

// ResultMessage is the structured form of an order or result message
// (ORM/ORU) the lab exchanges with instruments and the HIS.
type ResultMessage struct {
	MessageType          string       `json:"messageType"`
	TriggerEvent         string       `json:"triggerEvent,omitempty"`
	MessageControlID     string       `json:"messageControlId,omitempty"`
	SendingApplication   string       `json:"sendingApplication,omitempty"`
	SendingFacility      string       `json:"sendingFacility,omitempty"`
	ReceivingApplication string       `json:"receivingApplication,omitempty"`
	ReceivingFacility    string       `json:"receivingFacility,omitempty"`
	Timestamp            string       `json:"timestamp,omitempty"`
	Version              string       `json:"version,omitempty"`
	Patient              *PIDSegment  `json:"patient,omitempty"`
	Order                *ORCSegment  `json:"order,omitempty"`
	Request              *OBRSegment  `json:"request,omitempty"`
	Observations         []OBXSegment `json:"observations,omitempty"`
	Notes                []NTESegment `json:"notes,omitempty"`
}

// DecodeResultMessage projects the known segments of msg. Only the first
// PID, ORC and OBR are kept.
func DecodeResultMessage(msg *Message) ResultMessage {
	d := msg.Delimiters
	r := ResultMessage{
		MessageType:          msg.MessageType,
		TriggerEvent:         msg.TriggerEvent,
		MessageControlID:     msg.MessageControlID,
		SendingApplication:   msg.SendingApplication,
		SendingFacility:      msg.SendingFacility,
		ReceivingApplication: msg.ReceivingApplication,
		ReceivingFacility:    msg.ReceivingFacility,
		Timestamp:            msg.Timestamp,
		Version:              msg.Version,
	}

	for _, seg := range msg.Segments {
		switch seg.Type {
		case "PID":
			if r.Patient == nil {
				pid := DecodePID(seg, d)
				r.Patient = &pid
			}
		case "ORC":
			if r.Order == nil {
				orc := DecodeORC(seg, d)
				r.Order = &orc
			}
		case "OBR":
			if r.Request == nil {
				obr := DecodeOBR(seg, d)
				r.Request = &obr
			}
		case "OBX":
			r.Observations = append(r.Observations, DecodeOBX(seg, d))
		case "NTE":
			r.Notes = append(r.Notes, DecodeNTE(seg, d))
		}
	}

	return r
}

// Message assembles a Message ready for GenerateMessage.
func (r ResultMessage) Message(d Delimiters) (*Message, error) {
	d = d.orDefault()
	msg := &Message{
		MessageType:          r.MessageType,
		TriggerEvent:         r.TriggerEvent,
		MessageControlID:     r.MessageControlID,
		SendingApplication:   r.SendingApplication,
		SendingFacility:      r.SendingFacility,
		ReceivingApplication: r.ReceivingApplication,
		ReceivingFacility:    r.ReceivingFacility,
		Timestamp:            r.Timestamp,
		Version:              r.Version,
		Delimiters:           d,
	}

	if r.Patient != nil {
		msg.Segments = append(msg.Segments, r.Patient.Encode(d))
	}
	if r.Order != nil {
		orc, err := r.Order.Encode(d)
		if err != nil {
			return nil, fmt.Errorf("ORC oluşturulamadı: %w", err)
		}
		msg.Segments = append(msg.Segments, orc)
	}
	if r.Request != nil {
		msg.Segments = append(msg.Segments, r.Request.Encode(d))
	}
	for _, obx := range r.Observations {
		msg.Segments = append(msg.Segments, obx.Encode(d))
	}
	for _, nte := range r.Notes {
		msg.Segments = append(msg.Segments, nte.Encode(d))
	}

	return msg, nil
}
