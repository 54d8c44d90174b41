package billing

import (
	"context"
	"strconv"
	"sync"
)

// slicePages serves items in fixed-size pages; cursors are offsets.
func slicePages[T any](items []T, size int) PageFunc[T] {
	return func(_ context.Context, cursor string) (Page[T], error) {
		start := 0
		if cursor != "" {
			start, _ = strconv.Atoi(cursor)
		}
		if start >= len(items) {
			return Page[T]{}, nil
		}
		end := min(start+size, len(items))
		return Page[T]{
			Items:      items[start:end],
			NextCursor: strconv.Itoa(end),
			HasMore:    end < len(items),
		}, nil
	}
}

// fakeProvider is an in-memory Provider that records which listings were fetched.
type fakeProvider struct {
	pageSize      int
	customers     []Customer
	subscriptions map[string][]Subscription

	// failCustomersAt makes the customer page at that offset fail.
	failCustomersAt string
	failErr         error

	mu           sync.Mutex
	subsFetched  []string
	customerHits int
}

func (f *fakeProvider) Customers(ctx context.Context, _ string) Iter[Customer] {
	pages := slicePages(f.customers, f.pageSize)
	return NewPager(ctx, func(ctx context.Context, cursor string) (Page[Customer], error) {
		f.mu.Lock()
		f.customerHits++
		f.mu.Unlock()
		if f.failErr != nil && cursor == f.failCustomersAt {
			return Page[Customer]{}, f.failErr
		}
		return pages(ctx, cursor)
	})
}

func (f *fakeProvider) Subscriptions(ctx context.Context, customerID string) Iter[Subscription] {
	f.mu.Lock()
	f.subsFetched = append(f.subsFetched, customerID)
	f.mu.Unlock()
	return NewPager(ctx, slicePages(f.subscriptions[customerID], f.pageSize))
}
