package hl7

import "errors"

// ErrMissingOrderControl is returned when encoding an ORC without ORC-1.
var ErrMissingOrderControl = errors.New("hl7: ORC-1 order control zorunlu")

// ORCSegment is the typed view of a common order segment.
type ORCSegment struct {
	OrderControl           string    `json:"orderControl"`
	PlacerOrderNumber      string    `json:"placerOrderNumber,omitempty"`
	FillerOrderNumber      string    `json:"fillerOrderNumber,omitempty"`
	PlacerGroupNumber      string    `json:"placerGroupNumber,omitempty"`
	OrderStatus            string    `json:"orderStatus,omitempty"`
	ResponseFlag           string    `json:"responseFlag,omitempty"`
	DateTimeOfTransaction  string    `json:"dateTimeOfTransaction,omitempty"`
	OrderingProvider       *Provider `json:"orderingProvider,omitempty"`
	OrderEffectiveDateTime string    `json:"orderEffectiveDateTime,omitempty"`
}

const (
	orcOrderControl           = 0
	orcPlacerOrderNumber      = 1
	orcFillerOrderNumber      = 2
	orcPlacerGroupNumber      = 3
	orcOrderStatus            = 4
	orcResponseFlag           = 5
	orcDateTimeOfTransaction  = 8
	orcOrderingProvider       = 11
	orcOrderEffectiveDateTime = 14
	orcFieldCount             = orcOrderEffectiveDateTime + 1
)

// DecodeORC projects seg onto an ORCSegment. A missing ORC-1 decodes as "".
func DecodeORC(seg Segment, d Delimiters) ORCSegment {
	r := newFieldReader(seg, d)
	return ORCSegment{
		OrderControl:           r.value(orcOrderControl),
		PlacerOrderNumber:      r.value(orcPlacerOrderNumber),
		FillerOrderNumber:      r.value(orcFillerOrderNumber),
		PlacerGroupNumber:      r.value(orcPlacerGroupNumber),
		OrderStatus:            r.value(orcOrderStatus),
		ResponseFlag:           r.value(orcResponseFlag),
		DateTimeOfTransaction:  r.value(orcDateTimeOfTransaction),
		OrderingProvider:       r.provider(orcOrderingProvider),
		OrderEffectiveDateTime: r.value(orcOrderEffectiveDateTime),
	}
}

// Encode renders the view back into an ORC segment.
func (o ORCSegment) Encode(d Delimiters) (Segment, error) {
	if o.OrderControl == "" {
		return Segment{}, ErrMissingOrderControl
	}

	w := newFieldWriter(orcFieldCount, d)
	w.set(orcOrderControl, o.OrderControl)
	w.set(orcPlacerOrderNumber, o.PlacerOrderNumber)
	w.set(orcFillerOrderNumber, o.FillerOrderNumber)
	w.set(orcPlacerGroupNumber, o.PlacerGroupNumber)
	w.set(orcOrderStatus, o.OrderStatus)
	w.set(orcResponseFlag, o.ResponseFlag)
	w.set(orcDateTimeOfTransaction, o.DateTimeOfTransaction)
	w.setProvider(orcOrderingProvider, o.OrderingProvider)
	w.set(orcOrderEffectiveDateTime, o.OrderEffectiveDateTime)
	return w.segment("ORC"), nil
}
