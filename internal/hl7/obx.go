package hl7

// Observation result status codes (OBX-11) used by the lab.
const (
	ResultStatusFinal       = "F"
	ResultStatusCorrected   = "C"
	ResultStatusPreliminary = "P"
)

// OBXSegment is the typed view of an observation result. Values stay raw
// strings; numeric coercion belongs to the consumer.
type OBXSegment struct {
	SetID                   int           `json:"setId,omitempty"`
	ValueType               string        `json:"valueType,omitempty"`
	ObservationIdentifier   *CodedElement `json:"observationIdentifier,omitempty"`
	ObservationSubID        string        `json:"observationSubId,omitempty"`
	ObservationValues       []string      `json:"observationValues,omitempty"`
	Units                   string        `json:"units,omitempty"`
	ReferenceRange          string        `json:"referenceRange,omitempty"`
	AbnormalFlags           []string      `json:"abnormalFlags,omitempty"`
	ObservationResultStatus string        `json:"observationResultStatus,omitempty"`
	DateTimeOfObservation   string        `json:"dateTimeOfObservation,omitempty"`
}

const (
	obxSetID                   = 0
	obxValueType               = 1
	obxObservationIdentifier   = 2
	obxObservationSubID        = 3
	obxObservationValue        = 4
	obxUnits                   = 5
	obxReferenceRange          = 6
	obxAbnormalFlags           = 7
	obxObservationResultStatus = 10
	obxDateTimeOfObservation   = 13
	obxFieldCount              = obxDateTimeOfObservation + 1
)

// DecodeOBX projects seg onto an OBXSegment.
func DecodeOBX(seg Segment, d Delimiters) OBXSegment {
	r := newFieldReader(seg, d)
	return OBXSegment{
		SetID:                   r.setID(obxSetID),
		ValueType:               r.value(obxValueType),
		ObservationIdentifier:   r.coded(obxObservationIdentifier),
		ObservationSubID:        r.value(obxObservationSubID),
		ObservationValues:       r.repeats(obxObservationValue),
		Units:                   r.value(obxUnits),
		ReferenceRange:          r.value(obxReferenceRange),
		AbnormalFlags:           r.repeats(obxAbnormalFlags),
		ObservationResultStatus: r.value(obxObservationResultStatus),
		DateTimeOfObservation:   r.value(obxDateTimeOfObservation),
	}
}

// Encode renders the view back into an OBX segment. An unset result status
// is written as final.
func (o OBXSegment) Encode(d Delimiters) Segment {
	w := newFieldWriter(obxFieldCount, d)
	w.setID(obxSetID, o.SetID)
	w.set(obxValueType, o.ValueType)
	w.setCoded(obxObservationIdentifier, o.ObservationIdentifier)
	w.set(obxObservationSubID, o.ObservationSubID)
	w.setRepeats(obxObservationValue, o.ObservationValues)
	w.set(obxUnits, o.Units)
	w.set(obxReferenceRange, o.ReferenceRange)
	w.setRepeats(obxAbnormalFlags, o.AbnormalFlags)

	status := o.ObservationResultStatus
	if status == "" {
		status = ResultStatusFinal
	}
	w.set(obxObservationResultStatus, status)
	w.set(obxDateTimeOfObservation, o.DateTimeOfObservation)
	return w.segment("OBX")
}

// Value returns the first observation value.
func (o OBXSegment) Value() string {
	return at(o.ObservationValues, 0)
}
