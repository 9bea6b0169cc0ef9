package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afroash/ledger-monitor/internal/metrics"
	"github.com/afroash/ledger-monitor/internal/models"
)

// SnapshotView is the client-side decoding of a snapshot frame. Changes are
// nil when the server reports them as undefined.
type SnapshotView struct {
	Status      string           `json:"status"`
	Error       string           `json:"error"`
	Refreshing  bool             `json:"refreshing"`
	LastRefresh *time.Time       `json:"last_refresh"`
	Series      models.Series    `json:"series"`
	Setpoints   models.Setpoints `json:"setpoints"`
	Metrics     struct {
		Latest            *models.Reading  `json:"latest"`
		TemperatureChange *decimal.Decimal `json:"temperature_change_24h"`
		HumidityChange    *decimal.Decimal `json:"humidity_change_24h"`
		TemperatureCounts metrics.Counts   `json:"temperature_counts"`
		HumidityCounts    metrics.Counts   `json:"humidity_counts"`
		Elapsed           metrics.Elapsed  `json:"elapsed"`
	} `json:"metrics"`
}

// Line renders the view as one status line.
func (v SnapshotView) Line() string {
	var b strings.Builder
	b.WriteString(v.Status)
	if v.Error != "" {
		fmt.Fprintf(&b, " (%s)", v.Error)
	}
	fmt.Fprintf(&b, " | %d readings", len(v.Series))

	if latest := v.Metrics.Latest; latest != nil {
		fmt.Fprintf(&b, " | T %s°C %s %s",
			latest.Temperature.StringFixed(1),
			changeText(v.Metrics.TemperatureChange),
			metrics.Classify(latest.Temperature, v.Setpoints.Temperature))
		fmt.Fprintf(&b, " | H %s%% %s %s",
			latest.Humidity.StringFixed(1),
			changeText(v.Metrics.HumidityChange),
			metrics.Classify(latest.Humidity, v.Setpoints.Humidity))
	}
	fmt.Fprintf(&b, " | up %s", v.Metrics.Elapsed)
	return b.String()
}

func changeText(c *decimal.Decimal) string {
	if c == nil {
		return "(n/a)"
	}
	sign := ""
	if c.IsPositive() {
		sign = "+"
	}
	return "(" + sign + c.StringFixed(2) + "%)"
}
