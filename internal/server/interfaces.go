package server

import (
	"context"
	"time"

	"github.com/afroash/ledger-monitor/internal/models"
	"github.com/afroash/ledger-monitor/internal/monitor"
	"github.com/afroash/ledger-monitor/internal/setpoint"
	"github.com/afroash/ledger-monitor/internal/storage"
)

// Monitor is the core surface the HTTP layer drives.
// monitor.Monitor implements this interface
type Monitor interface {
	// Snapshot returns the current view-model
	Snapshot() monitor.Snapshot

	// RefreshNow runs a poll cycle unless one is in flight
	RefreshNow() error

	// Connect establishes the ledger connection
	Connect(ctx context.Context) (string, error)

	// StageSetpointEdit updates one pending setpoint field
	StageSetpointEdit(field string, edit setpoint.Edit) error

	// StageSetpointRange updates both pending bounds of a dimension
	StageSetpointRange(dimension string, min, max setpoint.Edit) error

	// CommitSetpoints applies the pending buffer
	CommitSetpoints() (models.Setpoints, error)

	// Refreshes lists recent poll cycles
	Refreshes(limit int) ([]*models.RefreshRecord, error)

	// RefreshesBetween lists poll cycles started in a time window
	RefreshesBetween(start, end time.Time, limit int) ([]*models.RefreshRecord, error)

	// JournalStats reports on the refresh journal, if enabled
	JournalStats() (storage.RecorderStats, bool)

	// Subscribe streams snapshot and clock updates
	Subscribe() (<-chan monitor.Update, func())
}

var _ Monitor = (*monitor.Monitor)(nil)
