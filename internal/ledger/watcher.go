package ledger

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Watcher forwards append notifications from an EventSource.
type Watcher struct {
	source   EventSource
	onAppend func(AppendEvent)
	logger   zerolog.Logger
}

// NewWatcher creates a watcher calling onAppend for every event, in order.
func NewWatcher(source EventSource, onAppend func(AppendEvent), logger zerolog.Logger) *Watcher {
	return &Watcher{source: source, onAppend: onAppend, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription ends. A nil error
// is returned on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan AppendEvent, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- w.source.WatchAppends(ctx, events)
	}()

	w.logger.Info().Msg("Watching ledger append events")
	for {
		select {
		case ev := <-events:
			w.logger.Debug().Uint64("index", ev.Index).Str("sensor_id", ev.Reading.SensorID).Msg("Append event")
			w.onAppend(ev)
		case err := <-errc:
			if err == nil || parent.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Append subscription ended")
			return err
		}
	}
}
