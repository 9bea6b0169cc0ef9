package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// wireScale is the decimal exponent of fixed-point values on the ledger:
// temperature and humidity are stored as integers scaled by 10.
const wireScale = -1

// RawReading is a reading exactly as the contract returns it.
type RawReading struct {
	SensorID     string
	Location     string
	ProcessStage string
	Timestamp    uint64 // unix seconds
	Temperature  int64  // tenths of a degree
	Humidity     uint64 // tenths of a percent
}

// Reading is a decoded, immutable ledger reading.
type Reading struct {
	Index        uint64          `json:"index"`
	SensorID     string          `json:"sensor_id"`
	Location     string          `json:"location"`
	ProcessStage string          `json:"process_stage"`
	Timestamp    time.Time       `json:"timestamp"`
	Temperature  decimal.Decimal `json:"temperature"`
	Humidity     decimal.Decimal `json:"humidity"`
}

// Decode converts the wire form into a Reading positioned at index.
func (r RawReading) Decode(index uint64) Reading {
	return Reading{
		Index:        index,
		SensorID:     r.SensorID,
		Location:     r.Location,
		ProcessStage: r.ProcessStage,
		Timestamp:    time.Unix(int64(r.Timestamp), 0).UTC(),
		Temperature:  DecodeTenths(r.Temperature),
		Humidity:     DecodeTenths(int64(r.Humidity)),
	}
}

// DecodeTenths turns a x10 scaled wire integer into its decimal value.
func DecodeTenths(v int64) decimal.Decimal {
	return decimal.New(v, wireScale)
}

// EncodeTenths is the inverse of DecodeTenths. Values with more than one
// fractional digit are rounded half away from zero, matching the writer.
func EncodeTenths(d decimal.Decimal) int64 {
	return d.Shift(-wireScale).Round(0).IntPart()
}

func (r *Reading) String() string {
	return fmt.Sprintf("Index: %d, SensorID: %s, Stage: %s, Timestamp: %s, Temperature: %s°C, Humidity: %s%%",
		r.Index,
		r.SensorID,
		r.ProcessStage,
		r.Timestamp.Format(time.RFC3339),
		r.Temperature.StringFixed(1),
		r.Humidity.StringFixed(1))
}

// Series is the ordered reconstruction of every reading as of one fetch.
type Series []Reading

// Latest returns the last reading of the series.
func (s Series) Latest() (Reading, bool) {
	if len(s) == 0 {
		return Reading{}, false
	}
	return s[len(s)-1], true
}

// Clone returns a copy that shares no backing array with s.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}
