// Package ratelimit implements a fixed counting window limiter keyed by
// caller-scoped route keys. State is process-local by design; multi-instance
// deployments get per-instance limits.
package ratelimit

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limit is a typed rate-limit spec: Count requests per Window.
type Limit struct {
	Count  int
	Window time.Duration
}

// unit durations for spec parsing.
var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// Parse converts a "count/unit" spec such as "100/hour" into a Limit.
// Unknown units fall back to minute. Parsing happens once at configuration
// load, never per request.
func Parse(spec string) (Limit, error) {
	parts := strings.SplitN(strings.TrimSpace(spec), "/", 2)

	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return Limit{}, &ParseError{Spec: spec}
	}

	window := time.Minute
	if len(parts) == 2 {
		unit := strings.ToLower(strings.TrimSpace(parts[1]))
		if d, ok := units[unit]; ok {
			window = d
		}
	}
	return Limit{Count: count, Window: window}, nil
}

// ParseError reports an unparsable rate-limit spec.
type ParseError struct {
	Spec string
}

func (e *ParseError) Error() string {
	return "invalid rate limit spec: " + e.Spec
}

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type window struct {
	count int
	start time.Time
	limit Limit
}

// Table holds one counting window per key. Windows are created lazily on
// first use and live for the process lifetime unless swept.
type Table struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewTable creates an empty limiter table.
func NewTable() *Table {
	return &Table{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow checks and consumes one request for key under lim. Exactly lim.Count
// requests pass within one window; the next is rejected until the window
// rolls over.
func (t *Table) Allow(key string, lim Limit) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	w, ok := t.windows[key]
	if !ok || w.limit != lim {
		w = &window{start: now, limit: lim}
		t.windows[key] = w
	}

	if now.Sub(w.start) >= lim.Window {
		w.count = 0
		w.start = now
	}

	resetAt := w.start.Add(lim.Window)
	if w.count >= lim.Count {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Remaining: lim.Count - w.count,
		ResetAt:   resetAt,
	}
}

// Sweep drops windows whose reset time has passed. Called from the
// maintenance schedule to bound table growth.
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, w := range t.windows {
		if now.Sub(w.start) >= w.limit.Window {
			delete(t.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live windows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}
