package metrics

import (
	"fmt"
	"time"
)

// Elapsed is a duration split into display components.
type Elapsed struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

// ElapsedSince splits now-start by integer division on milliseconds. A start
// in the future yields zero.
func ElapsedSince(start, now time.Time) Elapsed {
	ms := now.Sub(start).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return Elapsed{
		Days:    ms / (1000 * 60 * 60 * 24),
		Hours:   ms / (1000 * 60 * 60) % 24,
		Minutes: ms / (1000 * 60) % 60,
		Seconds: ms / 1000 % 60,
	}
}

func (e Elapsed) String() string {
	return fmt.Sprintf("%dd %02dh %02dm %02ds", e.Days, e.Hours, e.Minutes, e.Seconds)
}
