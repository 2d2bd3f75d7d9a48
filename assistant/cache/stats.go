package cache

import (
	"sync/atomic"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// KindStats is a point-in-time snapshot of one kind's counters.
type KindStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Stats tracks hit/miss accounting per kind. Counters are monotonic between
// resets and approximate under concurrency, which is acceptable by contract.
type Stats struct {
	byKind map[contractx.Kind]*counters
}

func NewStats() *Stats {
	byKind := make(map[contractx.Kind]*counters, 3)
	for _, kind := range contractx.Kinds() {
		byKind[kind] = &counters{}
	}
	return &Stats{byKind: byKind}
}

func (s *Stats) Hit(kind contractx.Kind) {
	if c, ok := s.byKind[kind]; ok {
		c.hits.Add(1)
	}
}

func (s *Stats) Miss(kind contractx.Kind) {
	if c, ok := s.byKind[kind]; ok {
		c.misses.Add(1)
	}
}

// Snapshot returns current counters for every kind.
func (s *Stats) Snapshot() map[contractx.Kind]KindStats {
	out := make(map[contractx.Kind]KindStats, len(s.byKind))
	for kind, c := range s.byKind {
		out[kind] = KindStats{
			Hits:   c.hits.Load(),
			Misses: c.misses.Load(),
		}
	}
	return out
}

// Reset zeroes all counters. Called only at process start or explicitly.
func (s *Stats) Reset() {
	for _, c := range s.byKind {
		c.hits.Store(0)
		c.misses.Store(0)
	}
}
