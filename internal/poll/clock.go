package poll

import (
	"context"
	"sync"
	"time"
)

// Clock calls onTick at a fixed interval until stopped.
type Clock struct {
	interval time.Duration
	onTick   func(time.Time)

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClock creates a clock. Start must be called to begin ticking.
func NewClock(interval time.Duration, onTick func(time.Time)) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &Clock{
		interval: interval,
		onTick:   onTick,
		stopChan: make(chan struct{}),
	}
}

// Start runs the ticker in a goroutine until Stop or ctx cancellation.
func (c *Clock) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case now := <-ticker.C:
				c.onTick(now)
			}
		}
	}()
}

// Stop halts the clock and waits for the last tick to finish.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
}
