package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"subscription-verifier/internal/billing"
	"subscription-verifier/internal/metrics"
)

const DefaultBaseURL = "https://api.stripe.com"

// Config holds what the client needs to reach the provider.
type Config struct {
	APIKey               string
	BaseURL              string
	APIVersion           string
	Timeout              time.Duration
	CustomerPageSize     int
	SubscriptionPageSize int
	Retry                RetryPolicy
}

// Client is a billing.Provider backed by the Stripe REST API.
type Client struct {
	baseURL              string
	apiKey               string
	apiVersion           string
	customerPageSize     int
	subscriptionPageSize int
	httpClient           HTTPDoer
	metrics              *metrics.Registry
}

var _ billing.Provider = (*Client)(nil)

// NewClient creates a new Stripe client with retrying transport.
func NewClient(cfg Config, reg *metrics.Registry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CustomerPageSize <= 0 {
		cfg.CustomerPageSize = 10
	}
	if cfg.SubscriptionPageSize <= 0 {
		cfg.SubscriptionPageSize = 20
	}
	return &Client{
		baseURL:              strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:               cfg.APIKey,
		apiVersion:           cfg.APIVersion,
		customerPageSize:     cfg.CustomerPageSize,
		subscriptionPageSize: cfg.SubscriptionPageSize,
		httpClient:           NewRetryClient(&http.Client{Timeout: cfg.Timeout}, cfg.Retry, reg),
		metrics:              reg,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

type listResponse[T any] struct {
	Data     []T    `json:"data"`
	HasMore  bool   `json:"has_more"`
	NextPage string `json:"next_page"`
}

// Customers searches customers by exact email, following next_page tokens.
func (c *Client) Customers(ctx context.Context, email string) billing.Iter[billing.Customer] {
	query := fmt.Sprintf("email:'%s'", escapeSearchValue(email))

	return billing.NewPager(ctx, func(ctx context.Context, cursor string) (billing.Page[billing.Customer], error) {
		params := url.Values{}
		params.Set("query", query)
		params.Set("limit", strconv.Itoa(c.customerPageSize))
		if cursor != "" {
			params.Set("page", cursor)
		}

		var resp listResponse[billing.Customer]
		if err := c.get(ctx, "/v1/customers/search", params, &resp); err != nil {
			return billing.Page[billing.Customer]{}, err
		}
		return billing.Page[billing.Customer]{
			Items:      resp.Data,
			NextCursor: resp.NextPage,
			HasMore:    resp.HasMore && resp.NextPage != "",
		}, nil
	})
}

// Subscriptions lists every subscription of a customer regardless of
// status, following starting_after cursors.
func (c *Client) Subscriptions(ctx context.Context, customerID string) billing.Iter[billing.Subscription] {
	return billing.NewPager(ctx, func(ctx context.Context, cursor string) (billing.Page[billing.Subscription], error) {
		params := url.Values{}
		params.Set("customer", customerID)
		params.Set("status", "all")
		params.Set("limit", strconv.Itoa(c.subscriptionPageSize))
		if cursor != "" {
			params.Set("starting_after", cursor)
		}

		var resp listResponse[billing.Subscription]
		if err := c.get(ctx, "/v1/subscriptions", params, &resp); err != nil {
			return billing.Page[billing.Subscription]{}, err
		}

		page := billing.Page[billing.Subscription]{Items: resp.Data, HasMore: resp.HasMore}
		if n := len(resp.Data); n > 0 {
			page.NextCursor = resp.Data[n-1].ID
		}
		return page, nil
	})
}

// get performs an authenticated GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("Stripe-Version", c.apiVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, body)
		if errors.Is(apiErr, ErrAuthentication) {
			c.metrics.Inc(metrics.ProviderAuthFailuresTotal)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error APIError `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Type = envelope.Error.Type
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

// escapeSearchValue escapes a value for a single-quoted search clause.
func escapeSearchValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
