package stripe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"subscription-verifier/internal/metrics"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryPolicy controls retry behavior for provider requests.
type RetryPolicy struct {
	MaxRetries  int           // retries after the first attempt
	BaseBackoff time.Duration // initial backoff
	MaxBackoff  time.Duration // upper bound on backoff
	JitterFn    func(time.Duration) time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		JitterFn:    func(d time.Duration) time.Duration { return d / 2 },
	}
}

// Retry executes fn with retries, backoff and cancellation support.
//
// fn must return nil on success. Errors wrapped with permanent are
// returned immediately.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var attempt int
	backoff := policy.BaseBackoff

	for {
		err := fn()
		if err == nil {
			return nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}

		attempt++
		if attempt > policy.MaxRetries {
			return err
		}

		delay := backoff
		if policy.JitterFn != nil {
			delay += policy.JitterFn(backoff)
		}
		if delay > policy.MaxBackoff {
			delay = policy.MaxBackoff
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			backoff *= 2
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func permanent(err error) error { return &permanentError{err: err} }

// RetryClient wraps an HTTPDoer and retries throttled (429), 5xx and
// transport failures. Client errors and cancellation are not retried.
// After the last attempt a retryable response is returned as-is so the
// caller can read its body.
type RetryClient struct {
	client  HTTPDoer
	policy  RetryPolicy
	metrics *metrics.Registry
}

// NewRetryClient wraps client. A nil client gets a 30s timeout default.
func NewRetryClient(client HTTPDoer, policy RetryPolicy, reg *metrics.Registry) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RetryClient{client: client, policy: policy, metrics: reg}
}

func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	err := Retry(req.Context(), rc.policy, func() error {
		if attempt > 0 {
			rc.metrics.Inc(metrics.ProviderRetriesTotal)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return permanent(fmt.Errorf("reset request body: %w", err))
				}
				req.Body = body
			}
		}
		attempt++
		rc.metrics.Inc(metrics.ProviderRequestsTotal)

		r, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return permanent(err)
			}
			return err
		}

		if !isRetryableStatus(r.StatusCode) || attempt > rc.policy.MaxRetries {
			resp = r
			return nil
		}

		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, r.Body)
		r.Body.Close()
		return fmt.Errorf("retryable status %d", r.StatusCode)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
