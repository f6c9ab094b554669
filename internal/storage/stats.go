package storage

import "sync/atomic"

// Stats holds the global data-layer counters. Atomic because requests run on
// arbitrary goroutines.
type Stats struct {
	totalQueries int64
	cacheHits    int64
	cacheMisses  int64
	storeErrors  int64
}

func (s *Stats) query()      { atomic.AddInt64(&s.totalQueries, 1) }
func (s *Stats) hit()        { atomic.AddInt64(&s.cacheHits, 1) }
func (s *Stats) miss()       { atomic.AddInt64(&s.cacheMisses, 1) }
func (s *Stats) storeError() { atomic.AddInt64(&s.storeErrors, 1) }

// StatsSnapshot is a point-in-time copy of the counters with the derived
// hit rate.
type StatsSnapshot struct {
	TotalQueries int64   `json:"totalQueries"`
	CacheHits    int64   `json:"cacheHits"`
	CacheMisses  int64   `json:"cacheMisses"`
	StoreErrors  int64   `json:"storeErrors"`
	HitRate      float64 `json:"hitRate"`
}

func (s *Stats) snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		TotalQueries: atomic.LoadInt64(&s.totalQueries),
		CacheHits:    atomic.LoadInt64(&s.cacheHits),
		CacheMisses:  atomic.LoadInt64(&s.cacheMisses),
		StoreErrors:  atomic.LoadInt64(&s.storeErrors),
	}
	if lookups := snap.CacheHits + snap.CacheMisses; lookups > 0 {
		snap.HitRate = float64(snap.CacheHits) / float64(lookups)
	}
	return snap
}
