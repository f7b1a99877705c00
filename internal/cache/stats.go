package cache

import "sync/atomic"

// Stats counts what a cache layer did. The zero value is ready to use.
type Stats struct {
	hits    atomic.Int64
	misses  atomic.Int64
	writes  atomic.Int64
	corrupt atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Writes  int64   `json:"writes"`
	Corrupt int64   `json:"corrupt"`
	HitRate float64 `json:"hit_rate"`
}

func (s *Stats) Hit()     { s.hits.Add(1) }
func (s *Stats) Miss()    { s.misses.Add(1) }
func (s *Stats) Write()   { s.writes.Add(1) }
func (s *Stats) Corrupt() { s.corrupt.Add(1) }

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Writes:  s.writes.Load(),
		Corrupt: s.corrupt.Load(),
	}
	if total := snap.Hits + snap.Misses; total > 0 {
		snap.HitRate = float64(snap.Hits) / float64(total)
	}
	return snap
}
