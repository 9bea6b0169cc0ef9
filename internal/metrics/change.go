package metrics

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afroash/ledger-monitor/internal/models"
)

// Window is the look-back used for the rolling change.
const Window = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Change is a percentage change rounded to two places. Defined is false when
// the reference value is zero; such a change encodes as JSON null.
type Change struct {
	Percent decimal.Decimal
	Defined bool
}

func (c Change) MarshalJSON() ([]byte, error) {
	if !c.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(c.Percent)
}

func (c Change) String() string {
	if !c.Defined {
		return "n/a"
	}
	return c.Percent.StringFixed(2) + "%"
}

// PercentChange returns (latest-ref)/ref*100 rounded to two places.
func PercentChange(latest, ref decimal.Decimal) Change {
	if ref.IsZero() {
		return Change{}
	}
	return Change{
		Percent: latest.Sub(ref).Div(ref).Mul(hundred).Round(2),
		Defined: true,
	}
}

// ReferenceIndex returns the position of the first reading no older than
// Window relative to the last reading, falling back to 0. ok is false for an
// empty series.
func ReferenceIndex(series models.Series) (int, bool) {
	if len(series) == 0 {
		return 0, false
	}
	last := series[len(series)-1].Timestamp
	for i, r := range series {
		if last.Sub(r.Timestamp) <= Window {
			return i, true
		}
	}
	return 0, true
}

// Change24h computes the rolling change for both dimensions. A series with
// fewer than two readings yields a defined zero change.
func Change24h(series models.Series) (temp, hum Change) {
	if len(series) < 2 {
		zero := Change{Percent: decimal.Zero, Defined: true}
		return zero, zero
	}
	ref, _ := ReferenceIndex(series)
	latest := series[len(series)-1]
	return PercentChange(latest.Temperature, series[ref].Temperature),
		PercentChange(latest.Humidity, series[ref].Humidity)
}
