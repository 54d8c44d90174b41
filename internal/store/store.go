package store

import (
	"container/list"
	"sync"
	"time"

	"subscription-verifier/internal/billing"
	"subscription-verifier/internal/metrics"
)

const (
	DefaultCapacity = 512
	DefaultTTL      = 90 * time.Second
)

// Store is a bounded, time-expiring verdict cache keyed by normalized email.
//
// Design principles:
// - A map gives O(1) lookup; a separate list of keys records insertion order.
// - Capacity is enforced on Set by dropping the oldest insert (FIFO, not LRU).
// - TTL is enforced lazily on Get; there is no background sweep, so stale
//   entries may stay in memory until read or pushed out.
// - Reads never change eviction order.
// - Overwriting a key moves it to the newest position and resets its age.
type Store struct {
	mu       sync.Mutex
	data     map[string]*Entry
	order    *list.List // front = oldest insert
	capacity int
	ttl      time.Duration
	now      func() time.Time
	metrics  *metrics.Registry
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore initializes an empty Store. Non-positive capacity or ttl fall
// back to DefaultCapacity and DefaultTTL.
func NewStore(capacity int, ttl time.Duration, metricsRegistry *metrics.Registry, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		data:     make(map[string]*Entry),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		metrics:  metricsRegistry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live verdict for key.
//
// Behavior:
// - Returns (verdict, true) if key exists and is not expired
// - If the key is expired, it is removed and treated as missing
func (s *Store) Get(key string) (billing.Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.data[key]
	if !exists {
		s.metrics.Inc(metrics.CacheMissesTotal)
		return billing.Verdict{}, false
	}

	if entry.IsExpired(s.now(), s.ttl) {
		s.removeLocked(key, entry)
		s.metrics.Inc(metrics.CacheExpiredTotal)
		s.metrics.Inc(metrics.CacheMissesTotal)
		return billing.Verdict{}, false
	}

	s.metrics.Inc(metrics.CacheHitsTotal)
	return entry.Value, true
}

// Set inserts or overwrites key with the current time and places it at
// the newest end of the eviction order. If that pushes the store over
// capacity, the oldest inserted key is dropped.
func (s *Store) Set(key string, value billing.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Inc(metrics.CacheSetsTotal)
	now := s.now()

	if entry, exists := s.data[key]; exists {
		entry.Value = value
		entry.InsertedAt = now
		s.order.MoveToBack(entry.elem)
		return
	}

	s.data[key] = &Entry{
		Value:      value,
		InsertedAt: now,
		elem:       s.order.PushBack(key),
	}
	s.metrics.Inc(metrics.CacheKeysTotal)

	if len(s.data) > s.capacity {
		oldest := s.order.Front()
		oldestKey := oldest.Value.(string)
		s.removeLocked(oldestKey, s.data[oldestKey])
		s.metrics.Inc(metrics.CacheEvictionsTotal)
	}
}

// Len returns the number of stored entries, including stale ones not yet purged.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data)
}

// Keys returns stored keys from oldest to newest insert.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// Capacity returns the maximum number of entries.
func (s *Store) Capacity() int {
	return s.capacity
}

// TTL returns the validity window of each entry.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) removeLocked(key string, entry *Entry) {
	s.order.Remove(entry.elem)
	delete(s.data, key)
	s.metrics.Add(metrics.CacheKeysTotal, -1)
}
