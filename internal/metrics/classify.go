package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/afroash/ledger-monitor/internal/models"
)

// Classification places a value relative to a setpoint range.
type Classification int

const (
	Within Classification = iota
	Below
	Above
)

func (c Classification) String() string {
	switch c {
	case Below:
		return "below"
	case Above:
		return "above"
	default:
		return "within"
	}
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classify returns Above when v > max, Below when v < min, Within otherwise.
func Classify(v decimal.Decimal, r models.Range) Classification {
	switch {
	case v.GreaterThan(r.Max):
		return Above
	case v.LessThan(r.Min):
		return Below
	default:
		return Within
	}
}

// Classes is the classification of one reading in both dimensions.
type Classes struct {
	Index       uint64         `json:"index"`
	Temperature Classification `json:"temperature"`
	Humidity    Classification `json:"humidity"`
}

// Counts tallies classifications over a series.
type Counts struct {
	Below  int `json:"below"`
	Within int `json:"within"`
	Above  int `json:"above"`
}

func (c *Counts) add(cl Classification) {
	switch cl {
	case Below:
		c.Below++
	case Above:
		c.Above++
	default:
		c.Within++
	}
}

// ClassifySeries classifies every reading against sp.
func ClassifySeries(series models.Series, sp models.Setpoints) ([]Classes, Counts, Counts) {
	out := make([]Classes, len(series))
	var temp, hum Counts
	for i, r := range series {
		c := Classes{
			Index:       r.Index,
			Temperature: Classify(r.Temperature, sp.Temperature),
			Humidity:    Classify(r.Humidity, sp.Humidity),
		}
		temp.add(c.Temperature)
		hum.add(c.Humidity)
		out[i] = c
	}
	return out, temp, hum
}
