package metrics

import (
	"time"

	"github.com/afroash/ledger-monitor/internal/models"
)

// Summary is every derived quantity for one series.
type Summary struct {
	Latest            *models.Reading `json:"latest"`
	TemperatureChange Change          `json:"temperature_change_24h"`
	HumidityChange    Change          `json:"humidity_change_24h"`
	ReferenceIndex    *uint64         `json:"reference_index"`
	Classes           []Classes       `json:"classes"`
	TemperatureCounts Counts          `json:"temperature_counts"`
	HumidityCounts    Counts          `json:"humidity_counts"`
	Elapsed           Elapsed         `json:"elapsed"`
}

// Compute derives the summary. It reads its inputs only.
func Compute(series models.Series, sp models.Setpoints, start, now time.Time) Summary {
	s := Summary{Elapsed: ElapsedSince(start, now)}

	if latest, ok := series.Latest(); ok {
		s.Latest = &latest
	}
	if ref, ok := ReferenceIndex(series); ok {
		idx := series[ref].Index
		s.ReferenceIndex = &idx
	}
	s.TemperatureChange, s.HumidityChange = Change24h(series)
	s.Classes, s.TemperatureCounts, s.HumidityCounts = ClassifySeries(series, sp)

	return s
}
