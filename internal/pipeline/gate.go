package pipeline

import (
	"sync"
	"time"
)

// DefaultDebounceInterval is the minimum spacing between processed
// responses.
const DefaultDebounceInterval = time.Second

// Gate suppresses response bursts. It is a single global gate shared across
// all tabs and endpoints: within the window, everything after the first
// accepted event is dropped, even for a different endpoint. That is coarse
// traffic-shaping carried over from the observed behaviour, not a
// correctness mechanism.
type Gate struct {
	interval time.Duration

	mu           sync.Mutex
	lastAccepted time.Time
}

// NewGate constructs a gate with the given minimum interval.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &Gate{interval: interval}
}

// ShouldProcess accepts an event only if at least the configured interval
// has passed since the last accepted one, and records the acceptance.
func (g *Gate) ShouldProcess(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < g.interval {
		return false
	}
	g.lastAccepted = now
	return true
}
