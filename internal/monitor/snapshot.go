package monitor

import (
	"time"

	"github.com/afroash/ledger-monitor/internal/ledger"
	"github.com/afroash/ledger-monitor/internal/metrics"
	"github.com/afroash/ledger-monitor/internal/models"
	"github.com/afroash/ledger-monitor/internal/setpoint"
)

// Status texts shown to the operator.
const (
	StatusNotConnected  = "Not connected to ledger"
	StatusConnecting    = "Connecting to ledger..."
	StatusConnectFailed = "Failed to connect to ledger"
	StatusFetchFailed   = "Error fetching data from ledger"
)

func connectedStatus(identity string) string {
	return "Connected as " + ledger.ShortIdentity(identity)
}

// Snapshot is the view-model handed to the presentation layer.
type Snapshot struct {
	Series      models.Series       `json:"series"`
	Setpoints   models.Setpoints    `json:"setpoints"`
	Pending     setpoint.Pending    `json:"pending_setpoints"`
	Connection  ledger.Status       `json:"connection"`
	LastRefresh *time.Time          `json:"last_refresh"`
	Metrics     metrics.Summary     `json:"metrics"`
	Status      string              `json:"status"`
	Error       string              `json:"error,omitempty"`
	Refreshing  bool                `json:"refreshing"`
	Monitor     *models.MonitorInfo `json:"monitor"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Update is pushed to subscribers. Snapshot is set for
// models.MessageTypeSnapshot; clock ticks carry only Elapsed.
type Update struct {
	Type     models.MessageType
	Snapshot *Snapshot
	Elapsed  metrics.Elapsed
}
