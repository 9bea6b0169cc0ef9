package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/afroash/ledger-monitor/internal/models"
)

// fakeStore is an in-memory ReadingStore.
type fakeStore struct {
	mu       sync.Mutex
	readings []models.RawReading
	countErr error
	failAt   map[uint64]error
	delay    func(index uint64) time.Duration
	calls    []uint64

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeStore(n int) *fakeStore {
	s := &fakeStore{failAt: map[uint64]error{}}
	for i := 0; i < n; i++ {
		s.readings = append(s.readings, models.RawReading{
			SensorID:     "SHT20-001",
			Location:     "Tank T-101",
			ProcessStage: "Storage",
			Timestamp:    uint64(1704067200 + i*60),
			Temperature:  int64(250 + i),
			Humidity:     uint64(600 + i),
		})
	}
	return s
}

func (s *fakeStore) Count(ctx context.Context) (uint64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.readings)), nil
}

func (s *fakeStore) ReadingAt(ctx context.Context, index uint64) (models.RawReading, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxInFlight.Load()
		if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, index)
	err := s.failAt[index]
	s.mu.Unlock()

	if s.delay != nil {
		select {
		case <-time.After(s.delay(index)):
		case <-ctx.Done():
			return models.RawReading{}, ctx.Err()
		}
	}
	if err != nil {
		return models.RawReading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= uint64(len(s.readings)) {
		return models.RawReading{}, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	return s.readings[index], nil
}

func (s *fakeStore) append(r models.RawReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
}

func (s *fakeStore) callLog() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.calls))
	copy(out, s.calls)
	return out
}

// fakeProvider counts Authorize calls and can block or fail on demand.
type fakeProvider struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
	closed  atomic.Bool
	store   ReadingStore
}

func (p *fakeProvider) Authorize(ctx context.Context) (*Session, error) {
	p.calls.Add(1)
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return NewSession("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", p.store, func() { p.closed.Store(true) }), nil
}
