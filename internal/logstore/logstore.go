// Package logstore keeps a fixed-capacity, newest-first probe history per
// monitor.
package logstore

import (
	"slices"
	"sync"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

const DefaultCapacity = 10

// ring is a fixed-size circular buffer; next is the slot the following
// append will overwrite.
type ring struct {
	entries []monitor.ProbeResult
	next    int
	size    int
}

func newRing(capacity int) *ring {
	return &ring{entries: make([]monitor.ProbeResult, capacity)}
}

func (r *ring) push(result monitor.ProbeResult) {
	r.entries[r.next] = result
	r.next = (r.next + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
}

// newest returns up to limit entries, most recent first.
func (r *ring) newest(limit int) []monitor.ProbeResult {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]monitor.ProbeResult, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		out[i] = r.entries[idx]
	}
	return out
}

// Store holds one ring per monitor id. It is safe for concurrent use.
type Store struct {
	mutex    sync.RWMutex
	capacity int
	logs     map[string]*ring
}

// New returns a store retaining capacity entries per monitor; non-positive
// values select DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		logs:     make(map[string]*ring),
	}
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Append records result as the newest entry for its monitor, evicting the
// oldest entry once the capacity is reached.
func (s *Store) Append(result monitor.ProbeResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.logs[result.MonitorID]
	if !ok {
		r = newRing(s.capacity)
		s.logs[result.MonitorID] = r
	}
	r.push(result)
}

// Recent returns a copy of the newest limit entries for id, newest first.
// A non-positive limit, or one above the capacity, returns everything held.
func (s *Store) Recent(id string, limit int) []monitor.ProbeResult {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	r, ok := s.logs[id]
	if !ok {
		return []monitor.ProbeResult{}
	}
	return r.newest(limit)
}

// Len returns the number of entries held for id.
func (s *Store) Len(id string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if r, ok := s.logs[id]; ok {
		return r.size
	}
	return 0
}

// Restore replaces the history of id with entries. They are ordered newest
// first by timestamp and entries beyond the capacity are dropped from the
// old end.
func (s *Store) Restore(id string, entries []monitor.ProbeResult) {
	entries = slices.Clone(entries)
	slices.SortStableFunc(entries, func(a, b monitor.ProbeResult) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(entries) > s.capacity {
		entries = entries[:s.capacity]
	}

	r := newRing(s.capacity)
	for i := len(entries) - 1; i >= 0; i-- {
		r.push(entries[i])
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logs[id] = r
}

// Forget drops all history for id.
func (s *Store) Forget(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.logs, id)
}
