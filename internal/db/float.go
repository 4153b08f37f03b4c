package db

import (
	"encoding/json"
	"math"
)

// Float is a float64 that survives JSON when non-finite: NaN and ±Inf are
// written as null, and null reads back as NaN. QC statistics over a zero SD
// or an empty series are legitimately non-finite.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}
