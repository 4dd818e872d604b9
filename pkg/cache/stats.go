package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks cache performance counters. Counters use atomics; the
// size high-water mark is mutex-protected.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a cache set operation.
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records a cache delete operation.
func (s *Statistics) Delete() { s.deletes.Add(1) }

// Eviction records a cache eviction.
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// UpdateSize updates the current cache size and high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total number of cache hits.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the total number of cache misses.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the total number of set operations.
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Deletes returns the total number of delete operations.
func (s *Statistics) Deletes() int64 { return s.deletes.Load() }

// Evictions returns the total number of evictions.
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// CurrentSize returns the current number of entries.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the most entries the cache has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRatio returns the cache hit ratio in [0.0, 1.0].
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the cache has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Summary is a point-in-time snapshot of all statistics.
type Summary struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Evictions   int64   `json:"evictions"`
	CurrentSize int64   `json:"current_size"`
	MaxSize     int64   `json:"max_size"`
	HitRatio    float64 `json:"hit_ratio"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() Summary {
	return Summary{
		Hits:        s.Hits(),
		Misses:      s.Misses(),
		Sets:        s.Sets(),
		Deletes:     s.Deletes(),
		Evictions:   s.Evictions(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		HitRatio:    s.HitRatio(),
	}
}
