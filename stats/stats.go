// Package stats implements a thread-safe composite-key counter used to
// track per-message-class, per-transport, per-outcome counts across the
// bus (published, received, routed, deduplicated, failed, dead-lettered).
package stats

import (
	"strings"
	"sync"
)

// Stats is a concurrent-safe map of composite keys to counters.
type Stats struct {
	mu       sync.RWMutex
	counters map[string]int64
}

// New returns an empty Stats.
func New() *Stats {
	return &Stats{counters: make(map[string]int64)}
}

func key(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// Add increments the counter identified by parts by count (default 1 when
// count is omitted by the caller via AddOne).
func (s *Stats) Add(count int64, parts ...string) {
	k := key(parts...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[k] += count
}

// AddOne increments the counter identified by parts by one.
func (s *Stats) AddOne(parts ...string) {
	s.Add(1, parts...)
}

// Get returns the current value of the counter identified by parts.
func (s *Stats) Get(parts ...string) int64 {
	k := key(parts...)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[k]
}

// Reset zeroes the counter identified by parts.
func (s *Stats) Reset(parts ...string) {
	k := key(parts...)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, k)
}

// ResetAll clears every counter.
func (s *Stats) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int64)
}

// All returns a snapshot of every composite key and its value, with keys
// rendered as their original parts joined by "+".
func (s *Stats) All() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[strings.ReplaceAll(k, "\x1f", "+")] = v
	}
	return out
}
