package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events []AppendEvent
	err    error
}

func (s *fakeSource) WatchAppends(ctx context.Context, out chan<- AppendEvent) error {
	for _, ev := range s.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.err != nil {
		// give the consumer a chance to drain before reporting
		time.Sleep(10 * time.Millisecond)
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWatcher_ForwardsEventsUntilFailure(t *testing.T) {
	src := &fakeSource{
		events: []AppendEvent{{Index: 3}, {Index: 4}},
		err:    errors.New("subscription dropped"),
	}
	var got []uint64
	w := NewWatcher(src, func(ev AppendEvent) { got = append(got, ev.Index) }, zerolog.Nop())

	err := w.Run(context.Background())
	require.EqualError(t, err, "subscription dropped")
	assert.Equal(t, []uint64{3, 4}, got)
}

func TestWatcher_CancelReturnsNil(t *testing.T) {
	w := NewWatcher(&fakeSource{}, func(AppendEvent) {}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, w.Run(ctx))
}
