package errors

import (
	"fmt"
	"sync"
)

// EscalationLevel marks a threshold crossing reported by the Tracker.
type EscalationLevel string

const (
	EscalationNone     EscalationLevel = ""
	EscalationWarning  EscalationLevel = "warning"
	EscalationCritical EscalationLevel = "critical"
)

// Tracker counts error frequency per (kind, module, method). Crossing the
// warning threshold and later the critical threshold each report exactly one
// escalation; subsequent occurrences only bump the counter.
type Tracker struct {
	mu       sync.Mutex
	counts   map[string]*routeCounter
	warnAt   int
	criticAt int
}

type routeCounter struct {
	count          int
	warnedAt       bool
	escalatedCrit  bool
}

// NewTracker creates a tracker with the given thresholds. criticalAt must be
// greater than warnAt; both must be positive.
func NewTracker(warnAt, criticalAt int) *Tracker {
	if warnAt <= 0 {
		warnAt = 10
	}
	if criticalAt <= warnAt {
		criticalAt = warnAt * 5
	}
	return &Tracker{
		counts:   make(map[string]*routeCounter),
		warnAt:   warnAt,
		criticAt: criticalAt,
	}
}

// Record increments the counter for (kind, module, method) and returns the
// escalation level crossed by this occurrence, if any.
func (t *Tracker) Record(kind Kind, module, method string) EscalationLevel {
	key := trackerKey(kind, module, method)

	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.counts[key]
	if !ok {
		c = &routeCounter{}
		t.counts[key] = c
	}
	c.count++

	if !c.warnedAt && c.count >= t.warnAt {
		c.warnedAt = true
		return EscalationWarning
	}
	if !c.escalatedCrit && c.count >= t.criticAt {
		c.escalatedCrit = true
		return EscalationCritical
	}
	return EscalationNone
}

// Count returns the current count for (kind, module, method).
func (t *Tracker) Count(kind Kind, module, method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.counts[trackerKey(kind, module, method)]; ok {
		return c.count
	}
	return 0
}

// Reset clears all counters. Used by tests and the maintenance sweep.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[string]*routeCounter)
}

func trackerKey(kind Kind, module, method string) string {
	return fmt.Sprintf("%s:%s:%s", kind, module, method)
}
