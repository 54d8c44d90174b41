package billing

import "context"

// Subscription statuses that count as verified.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
)

// IsAllowedStatus reports whether a subscription status grants access.
func IsAllowedStatus(status string) bool {
	return status == StatusActive || status == StatusTrialing
}

// Customer is the subset of a provider customer record the resolver needs.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DisplayName returns the customer's name, falling back to the email.
func (c Customer) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// Subscription is the subset of a provider subscription record the resolver needs.
type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Iter walks a finite, lazily fetched sequence.
//
// Next advances and reports whether Current holds a new item. Once Next
// returns false, Err reports why: nil means the sequence is exhausted.
type Iter[T any] interface {
	Next() bool
	Current() T
	Err() error
}

// Provider is the billing backend queried on a cache miss. Each call
// returns a fresh iterator; page fetches happen inside Next and are bound
// to ctx.
type Provider interface {
	Customers(ctx context.Context, email string) Iter[Customer]
	Subscriptions(ctx context.Context, customerID string) Iter[Subscription]
}
