package billing

import (
	"context"
	"fmt"
)

// Resolver turns a provider's customer and subscription listings into a
// single Verdict. It keeps no state between calls.
type Resolver struct {
	provider Provider
}

// NewResolver creates a resolver backed by provider.
func NewResolver(provider Provider) *Resolver {
	return &Resolver{provider: provider}
}

// Resolve walks customers matching email in provider order and, for each,
// its subscriptions in provider order. The first subscription with an
// allowed status wins and stops the walk.
//
// Any page failure aborts resolution and is returned as-is; no partial
// verdict is produced.
func (r *Resolver) Resolve(ctx context.Context, email string) (Verdict, error) {
	customers := r.provider.Customers(ctx, email)

	seen := false
	for customers.Next() {
		seen = true
		c := customers.Current()

		subs := r.provider.Subscriptions(ctx, c.ID)
		for subs.Next() {
			s := subs.Current()
			if IsAllowedStatus(s.Status) {
				return Verified(c.DisplayName(), s.Status), nil
			}
		}
		if err := subs.Err(); err != nil {
			return Verdict{}, fmt.Errorf("list subscriptions for customer %s: %w", c.ID, err)
		}
	}
	if err := customers.Err(); err != nil {
		return Verdict{}, fmt.Errorf("search customers: %w", err)
	}

	if !seen {
		return NotFound(), nil
	}
	return NoActiveSubscription(), nil
}
