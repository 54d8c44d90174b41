package metrics

import (
	"sync"
	"sync/atomic"
)

// MetricKey is a strongly typed metric identifier.
type MetricKey string

// Metric keys (centralized)
const (
	// Lookups
	LookupsTotal          MetricKey = "lookups_total"
	LookupFailuresTotal   MetricKey = "lookup_failures_total"
	CoalescedLookupsTotal MetricKey = "coalesced_lookups_total"
	LookupsAbandonedTotal MetricKey = "lookups_abandoned_total"

	// Cache
	CacheKeysTotal      MetricKey = "cache_keys_total"
	CacheSetsTotal      MetricKey = "cache_sets_total"
	CacheHitsTotal      MetricKey = "cache_hits_total"
	CacheMissesTotal    MetricKey = "cache_misses_total"
	CacheExpiredTotal   MetricKey = "cache_expired_total"
	CacheEvictionsTotal MetricKey = "cache_evictions_total"

	// Resolution
	ResolutionsTotal        MetricKey = "resolutions_total"
	VerdictVerifiedTotal    MetricKey = "verdict_verified_total"
	VerdictNotFoundTotal    MetricKey = "verdict_not_found_total"
	VerdictNoActiveSubTotal MetricKey = "verdict_no_active_subscription_total"

	// Billing provider
	ProviderRequestsTotal     MetricKey = "provider_requests_total"
	ProviderRetriesTotal      MetricKey = "provider_retries_total"
	ProviderAuthFailuresTotal MetricKey = "provider_auth_failures_total"
)

// Registry stores all metrics.
type Registry struct {
	mu       sync.RWMutex
	counters map[MetricKey]*int64
}

// NewRegistry creates a metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[MetricKey]*int64),
	}
}

// Inc increments a metric by 1.
func (r *Registry) Inc(key MetricKey) {
	r.Add(key, 1)
}

// Add increments a metric by delta.
func (r *Registry) Add(key MetricKey, delta int64) {
	r.mu.RLock()
	ptr, ok := r.counters[key]
	r.mu.RUnlock()

	if ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another writer may have created it while we waited
	if ptr, ok = r.counters[key]; ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	var val int64
	r.counters[key] = &val
	atomic.AddInt64(&val, delta)
}

// Get returns the current value of a single metric (0 if never touched).
func (r *Registry) Get(key MetricKey) int64 {
	r.mu.RLock()
	ptr, ok := r.counters[key]
	r.mu.RUnlock()

	if !ok {
		return 0
	}
	return atomic.LoadInt64(ptr)
}

// Snapshot returns a copy of all counters keyed by name.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.counters))
	for key, ptr := range r.counters {
		out[string(key)] = atomic.LoadInt64(ptr)
	}
	return out
}
