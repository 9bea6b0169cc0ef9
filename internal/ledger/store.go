package ledger

import (
	"context"
	"errors"

	"github.com/afroash/ledger-monitor/internal/models"
)

// ErrOutOfRange is returned by a ReadingStore when index >= Count().
var ErrOutOfRange = errors.New("reading index out of range")

// ReadingStore is the read-only contract of the ledger-side program.
type ReadingStore interface {
	// Count returns the current number of stored readings.
	Count(ctx context.Context) (uint64, error)

	// ReadingAt returns the reading stored at index.
	ReadingAt(ctx context.Context, index uint64) (models.RawReading, error)
}

// AppendEvent is emitted by the ledger-side program for every stored reading.
type AppendEvent struct {
	Index   uint64
	Reading models.RawReading
}

// EventSource is implemented by stores that can push append notifications.
type EventSource interface {
	// WatchAppends delivers events until ctx is done or the subscription fails.
	WatchAppends(ctx context.Context, events chan<- AppendEvent) error
}
