package hl7

// OBRSegment is the typed view of an observation request.
type OBRSegment struct {
	SetID                  int           `json:"setId,omitempty"`
	PlacerOrderNumber      string        `json:"placerOrderNumber,omitempty"`
	FillerOrderNumber      string        `json:"fillerOrderNumber,omitempty"`
	UniversalServiceID     *CodedElement `json:"universalServiceId,omitempty"`
	Priority               string        `json:"priority,omitempty"`
	RequestedDateTime      string        `json:"requestedDateTime,omitempty"`
	ObservationDateTime    string        `json:"observationDateTime,omitempty"`
	ObservationEndDateTime string        `json:"observationEndDateTime,omitempty"`
	OrderingProvider       *Provider     `json:"orderingProvider,omitempty"`
	FillerField1           string        `json:"fillerField1,omitempty"`
	FillerField2           string        `json:"fillerField2,omitempty"`
	DiagnosticServSectID   string        `json:"diagnosticServSectId,omitempty"`
	ResultStatus           string        `json:"resultStatus,omitempty"`
}

const (
	obrSetID                  = 0
	obrPlacerOrderNumber      = 1
	obrFillerOrderNumber      = 2
	obrUniversalServiceID     = 3
	obrPriority               = 4
	obrRequestedDateTime      = 5
	obrObservationDateTime    = 6
	obrObservationEndDateTime = 7
	obrOrderingProvider       = 15
	obrFillerField1           = 21
	obrFillerField2           = 22
	obrDiagnosticServSectID   = 24
	obrResultStatus           = 25
	obrFieldCount             = obrResultStatus + 1
)

// DecodeOBR projects seg onto an OBRSegment.
func DecodeOBR(seg Segment, d Delimiters) OBRSegment {
	r := newFieldReader(seg, d)
	return OBRSegment{
		SetID:                  r.setID(obrSetID),
		PlacerOrderNumber:      r.value(obrPlacerOrderNumber),
		FillerOrderNumber:      r.value(obrFillerOrderNumber),
		UniversalServiceID:     r.coded(obrUniversalServiceID),
		Priority:               r.value(obrPriority),
		RequestedDateTime:      r.value(obrRequestedDateTime),
		ObservationDateTime:    r.value(obrObservationDateTime),
		ObservationEndDateTime: r.value(obrObservationEndDateTime),
		OrderingProvider:       r.provider(obrOrderingProvider),
		FillerField1:           r.value(obrFillerField1),
		FillerField2:           r.value(obrFillerField2),
		DiagnosticServSectID:   r.value(obrDiagnosticServSectID),
		ResultStatus:           r.value(obrResultStatus),
	}
}

// Encode renders the view back into an OBR segment.
func (o OBRSegment) Encode(d Delimiters) Segment {
	w := newFieldWriter(obrFieldCount, d)
	w.setID(obrSetID, o.SetID)
	w.set(obrPlacerOrderNumber, o.PlacerOrderNumber)
	w.set(obrFillerOrderNumber, o.FillerOrderNumber)
	w.setCoded(obrUniversalServiceID, o.UniversalServiceID)
	w.set(obrPriority, o.Priority)
	w.set(obrRequestedDateTime, o.RequestedDateTime)
	w.set(obrObservationDateTime, o.ObservationDateTime)
	w.set(obrObservationEndDateTime, o.ObservationEndDateTime)
	w.setProvider(obrOrderingProvider, o.OrderingProvider)
	w.set(obrFillerField1, o.FillerField1)
	w.set(obrFillerField2, o.FillerField2)
	w.set(obrDiagnosticServSectID, o.DiagnosticServSectID)
	w.set(obrResultStatus, o.ResultStatus)
	return w.segment("OBR")
}
