package verifier

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/singleflight"

	"subscription-verifier/internal/billing"
	"subscription-verifier/internal/logs"
	"subscription-verifier/internal/metrics"
	"subscription-verifier/internal/store"
)

// Resolver computes a verdict for a normalized email.
type Resolver interface {
	Resolve(ctx context.Context, email string) (billing.Verdict, error)
}

// Service answers verdict lookups from the cache, falling back to the
// resolver on a miss.
type Service struct {
	store    *store.Store
	resolver Resolver
	logger   *logs.Logger
	metrics  *metrics.Registry

	coalesce bool
	group    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithCoalescing makes concurrent misses for the same email share a single
// resolution.
func WithCoalescing(enabled bool) Option {
	return func(s *Service) {
		s.coalesce = enabled
	}
}

// NewService wires a cache and a resolver together.
func NewService(
	cache *store.Store,
	resolver Resolver,
	logger *logs.Logger,
	reg *metrics.Registry,
	opts ...Option,
) *Service {
	s := &Service{
		store:    cache,
		resolver: resolver,
		logger:   logger,
		metrics:  reg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize trims and lower-cases an email into a cache key.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LookupVerdict returns the verdict for an already normalized email.
//
// A cache hit is returned unchanged without calling the resolver. On a
// miss the resolved verdict is cached before being returned. Errors are
// returned to the caller and nothing is cached for them.
func (s *Service) LookupVerdict(ctx context.Context, email string) (billing.Verdict, error) {
	s.metrics.Inc(metrics.LookupsTotal)

	if v, ok := s.store.Get(email); ok {
		return v, nil
	}

	var (
		v   billing.Verdict
		err error
	)
	if s.coalesce {
		v, err = s.resolveShared(ctx, email)
	} else {
		v, err = s.resolve(ctx, email)
	}
	if err != nil {
		if ctx.Err() != nil {
			// caller went away; not a provider failure
			s.metrics.Inc(metrics.LookupsAbandonedTotal)
		} else {
			s.metrics.Inc(metrics.LookupFailuresTotal)
		}
		return billing.Verdict{}, err
	}
	return v, nil
}

// resolve runs the resolver without holding any cache lock and stores the
// verdict only if resolution succeeded.
func (s *Service) resolve(ctx context.Context, email string) (billing.Verdict, error) {
	s.metrics.Inc(metrics.ResolutionsTotal)

	v, err := s.resolver.Resolve(ctx, email)
	if err != nil {
		return billing.Verdict{}, err
	}

	s.store.Set(email, v)
	s.countVerdict(v)
	s.logger.Debug("verdict resolved", "outcome", v.Outcome)
	return v, nil
}

// resolveShared joins an in-flight resolution for the same email, or starts
// one. The shared call runs under the starter's ctx. A waiter whose own ctx
// ends stops waiting; a waiter that is still live when the starter's ctx
// ends resolves again under its own ctx.
func (s *Service) resolveShared(ctx context.Context, email string) (billing.Verdict, error) {
	ch := s.group.DoChan(email, func() (any, error) {
		return s.resolve(ctx, email)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.metrics.Inc(metrics.CoalescedLookupsTotal)
		}
		if res.Err != nil {
			if isContextErr(res.Err) && ctx.Err() == nil {
				return s.resolve(ctx, email)
			}
			return billing.Verdict{}, res.Err
		}
		return res.Val.(billing.Verdict), nil
	case <-ctx.Done():
		return billing.Verdict{}, ctx.Err()
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) countVerdict(v billing.Verdict) {
	switch v.Outcome {
	case billing.OutcomeVerified:
		s.metrics.Inc(metrics.VerdictVerifiedTotal)
	case billing.OutcomeNotFound:
		s.metrics.Inc(metrics.VerdictNotFoundTotal)
	case billing.OutcomeNoActiveSubscription:
		s.metrics.Inc(metrics.VerdictNoActiveSubTotal)
	}
}
