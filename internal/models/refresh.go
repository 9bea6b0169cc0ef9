package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshRecord describes one completed poll cycle.
type RefreshRecord struct {
	ID           uuid.UUID `json:"id"`
	Trigger      string    `json:"trigger"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ReadingCount int       `json:"reading_count"`
	Error        string    `json:"error,omitempty"`
}

// NewRefreshRecord starts a record for a cycle beginning now.
func NewRefreshRecord(trigger string) *RefreshRecord {
	return &RefreshRecord{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the end of the cycle with its outcome.
func (r *RefreshRecord) Finish(count int, err error) {
	r.FinishedAt = time.Now().UTC()
	r.ReadingCount = count
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration is the wall time of the cycle.
func (r *RefreshRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// OK reports whether the cycle succeeded.
func (r *RefreshRecord) OK() bool {
	return r.Error == ""
}
