package store

import (
	"container/list"
	"time"

	"subscription-verifier/internal/billing"
)

// Entry is a cached verdict and the time it was written.
//
// The entry is served while now - InsertedAt <= ttl.
type Entry struct {
	Value      billing.Verdict
	InsertedAt time.Time

	// node holding this key in the store's insertion queue
	elem *list.Element
}

// IsExpired checks whether the entry is stale at the given time.
func (e Entry) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.InsertedAt) > ttl
}
