// Package pending holds request metadata between a request-will-be-sent
// event and its response, so id-list operations can recover their target
// ids from the original request body.
package pending

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL bounds how long a request stays correlatable.
const DefaultTTL = 10 * time.Second

// Request is the captured metadata of one in-flight request.
type Request struct {
	RequestID  string
	URL        string
	Body       string
	CapturedAt time.Time
}

// Table is a time-bounded store of in-flight requests keyed by request id.
// At most one live entry exists per id; recording again overwrites.
type Table struct {
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]Request
}

// Option tunes a Table.
type Option func(*Table)

// WithTTL overrides the expiry window.
func WithTTL(ttl time.Duration) Option {
	return func(t *Table) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTable constructs an empty table.
func NewTable(logger zerolog.Logger, opts ...Option) *Table {
	t := &Table{
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logger.With().Str("component", "pending").Logger(),
		entries: make(map[string]Request),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record inserts or overwrites the entry for a request id.
func (t *Table) Record(requestID, url, body string) {
	now := t.now()
	t.mu.Lock()
	t.entries[requestID] = Request{
		RequestID:  requestID,
		URL:        url,
		Body:       body,
		CapturedAt: now,
	}
	t.mu.Unlock()
	t.logger.Debug().Str("request_id", requestID).Str("url", url).Msg("stored request data")
}

// Lookup returns the live entry for a request id. Expired entries read as
// absent; callers treat absence as lost correlation, not an error.
func (t *Table) Lookup(requestID string) (Request, bool) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[requestID]
	if !ok {
		return Request{}, false
	}
	if now.Sub(entry.CapturedAt) >= t.ttl {
		delete(t.entries, requestID)
		t.logger.Debug().Str("request_id", requestID).Msg("cleaned up expired request data")
		return Request{}, false
	}
	return entry, true
}

// Expire removes an entry, typically after its response was processed.
func (t *Table) Expire(requestID string) {
	t.mu.Lock()
	_, ok := t.entries[requestID]
	delete(t.entries, requestID)
	t.mu.Unlock()
	if ok {
		t.logger.Debug().Str("request_id", requestID).Msg("cleaned up request data")
	}
}

// Sweep removes every entry past the TTL and returns how many were cleaned.
// The browser manager runs this on a ticker so abandoned requests cannot
// accumulate.
func (t *Table) Sweep() int {
	now := t.now()
	t.mu.Lock()
	cleaned := 0
	for id, entry := range t.entries {
		if now.Sub(entry.CapturedAt) >= t.ttl {
			delete(t.entries, id)
			cleaned++
		}
	}
	t.mu.Unlock()
	if cleaned > 0 {
		t.logger.Debug().Int("cleaned", cleaned).Msg("cleaned up expired request data")
	}
	return cleaned
}

// Len reports the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
