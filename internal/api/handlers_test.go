package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"subscription-verifier/internal/billing"
	"subscription-verifier/internal/health"
	"subscription-verifier/internal/logs"
	"subscription-verifier/internal/metrics"
	"subscription-verifier/internal/store"
	"subscription-verifier/internal/stripe"
	"subscription-verifier/internal/verifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ---------------- Mock Resolver ---------------- */

type mockResolver struct {
	mu       sync.Mutex
	verdicts map[string]billing.Verdict
	err      error
	seen     []string
}

func (m *mockResolver) Resolve(_ context.Context, email string) (billing.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, email)
	if m.err != nil {
		return billing.Verdict{}, m.err
	}
	if v, ok := m.verdicts[email]; ok {
		return v, nil
	}
	return billing.NotFound(), nil
}

func (m *mockResolver) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

type testEnv struct {
	server   *httptest.Server
	resolver *mockResolver
	store    *store.Store
	logger   *logs.Logger
}

func setUpTestServer(t *testing.T) *testEnv {
	t.Helper()

	publicDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(publicDir, "check.html"), []byte("<h1>check</h1>"), 0644))

	reg := metrics.NewRegistry()
	logger := logs.NewLogger(50, logs.DEBUG)
	st := store.NewStore(8, time.Minute, reg)
	resolver := &mockResolver{verdicts: map[string]billing.Verdict{
		"ada@example.com":   billing.Verified("Ada Lovelace", "active"),
		"trial@example.com": billing.Verified("trial@example.com", "trialing"),
		"gone@example.com":  billing.NoActiveSubscription(),
		"anon@example.com":  billing.Verified("", "active"),
	}}
	svc := verifier.NewService(st, resolver, logger, reg)

	h := NewHandler(svc, st, reg, logger, publicDir)
	server := httptest.NewServer(RegisterRoutes(h, []string{"*"}))
	t.Cleanup(server.Close)

	return &testEnv{server: server, resolver: resolver, store: st, logger: logger}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

/* ---------------- GET /api/subscription/verify-by-email ---------------- */

func TestVerifyByEmail(t *testing.T) {
	env := setUpTestServer(t)
	base := env.server.URL + "/api/subscription/verify-by-email"

	t.Run("Verified", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, base+"?email=ada@example.com", &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, map[string]any{"ok": true, "name": "Ada Lovelace", "status": "active"}, body)
	})

	t.Run("NullNameWhenCustomerHasNone", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, base+"?email=anon@example.com", &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{"ok": true, "name": nil, "status": "active"}, body)
	})

	t.Run("Trialing", func(t *testing.T) {
		var body map[string]any
		getJSON(t, base+"?email=trial@example.com", &body)
		assert.Equal(t, "trialing", body["status"])
	})

	t.Run("NormalizesEmail", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, base+"?email=%20%20ADA@Example.com%20", &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
	})

	t.Run("CustomerNotFound", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, base+"?email=nobody@example.com", &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{"ok": false, "reason": "customer_not_found"}, body)
	})

	t.Run("NoActiveSubscription", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, base+"?email=gone@example.com", &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{"ok": false, "reason": "no_active_subscription"}, body)
	})

	t.Run("MissingEmail", func(t *testing.T) {
		for _, q := range []string{"", "?email=", "?email=%20%20"} {
			var body map[string]any
			resp := getJSON(t, base+q, &body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, map[string]any{"ok": false, "reason": "missing_email"}, body)
		}
	})

	t.Run("SecondLookupServedFromCache", func(t *testing.T) {
		env.resolver.mu.Lock()
		before := len(env.resolver.seen)
		env.resolver.mu.Unlock()

		var body map[string]any
		getJSON(t, base+"?email=ada@example.com", &body)

		env.resolver.mu.Lock()
		assert.Equal(t, before, len(env.resolver.seen))
		env.resolver.mu.Unlock()
	})
}

func TestVerifyByEmail_Failures(t *testing.T) {
	t.Run("InvalidStripeKey", func(t *testing.T) {
		env := setUpTestServer(t)
		env.resolver.setErr(fmt.Errorf("search customers: %w", &stripe.APIError{StatusCode: http.StatusUnauthorized}))

		var body map[string]any
		resp := getJSON(t, env.server.URL+"/api/subscription/verify-by-email?email=ada@example.com", &body)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, map[string]any{"ok": false, "reason": "invalid_stripe_key"}, body)
		assert.Equal(t, 0, env.store.Len())
	})

	t.Run("InternalError", func(t *testing.T) {
		env := setUpTestServer(t)
		env.resolver.setErr(errors.New("connection reset by peer"))

		req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/subscription/verify-by-email?email=ada@example.com", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, map[string]any{"ok": false, "reason": "internal_error"}, body)
		assert.Equal(t, 0, env.store.Len(), "failures are never cached")

		var found bool
		for _, e := range env.logger.GetLast(50) {
			if e.Message == "lookup failed" && e.Fields["request_id"] == "req-42" {
				found = true
			}
		}
		assert.True(t, found, "failure should be logged with the request id")
	})
}

// ctxResolver fails with the caller's context error, like a provider call
// cut short by a client disconnect.
type ctxResolver struct{}

func (ctxResolver) Resolve(ctx context.Context, _ string) (billing.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return billing.Verdict{}, err
	}
	return billing.NotFound(), nil
}

func TestVerifyByEmail_ClientGone(t *testing.T) {
	reg := metrics.NewRegistry()
	logger := logs.NewLogger(50, logs.DEBUG)
	st := store.NewStore(8, time.Minute, reg)
	h := NewHandler(verifier.NewService(st, ctxResolver{}, logger, reg), st, reg, logger, t.TempDir())

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodGet, "/api/subscription/verify-by-email?email=ada@example.com", nil).WithContext(ctx)
		h.VerifyByEmail(httptest.NewRecorder(), req)
	}

	abandoned := 0
	for _, e := range logger.GetLast(50) {
		assert.NotEqual(t, logs.WARN, e.Level, e.Message)
		if e.Message == "lookup abandoned" {
			abandoned++
		}
	}
	assert.Equal(t, 5, abandoned)

	assert.Equal(t, int64(0), reg.Get(metrics.LookupFailuresTotal))
	assert.Equal(t, int64(5), reg.Get(metrics.LookupsAbandonedTotal))
	assert.Equal(t, health.StatusOK, h.analyzer.Analyze().OverallStatus)
	assert.Equal(t, 0, st.Len())
}

/* ---------------- GET / and /check ---------------- */

func TestCheckPage(t *testing.T) {
	env := setUpTestServer(t)

	for _, path := range []string{"/", "/check"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html", path)
	}
}

/* ---------------- GET /metrics ---------------- */

func TestGetMetrics(t *testing.T) {
	env := setUpTestServer(t)

	resp, err := http.Get(env.server.URL + "/api/subscription/verify-by-email?email=ada@example.com")
	require.NoError(t, err)
	resp.Body.Close()

	var data map[string]int64
	resp = getJSON(t, env.server.URL+"/metrics", &data)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), data[string(metrics.LookupsTotal)])
	assert.Equal(t, int64(1), data[string(metrics.CacheMissesTotal)])
	assert.Equal(t, int64(1), data[string(metrics.VerdictVerifiedTotal)])
}

/* ---------------- GET /health ---------------- */

func TestGetHealth(t *testing.T) {
	env := setUpTestServer(t)

	var report map[string]any
	resp := getJSON(t, env.server.URL+"/health", &report)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", report["overall_status"])
	assert.Contains(t, report, "summary")
	assert.Contains(t, report, "signals")
	assert.Contains(t, report, "recommendations")
}

/* ---------------- GET /admin/* ---------------- */

func TestAdminCache(t *testing.T) {
	env := setUpTestServer(t)

	resp, err := http.Get(env.server.URL + "/api/subscription/verify-by-email?email=ada@example.com")
	require.NoError(t, err)
	resp.Body.Close()

	var stats map[string]any
	getJSON(t, env.server.URL+"/admin/cache", &stats)

	assert.Equal(t, map[string]any{"size": float64(1), "capacity": float64(8), "ttl_seconds": float64(60)}, stats)
}

func TestAdminLogs(t *testing.T) {
	env := setUpTestServer(t)
	env.logger.Info("hello")

	t.Run("Default", func(t *testing.T) {
		var entries []logs.Entry
		resp := getJSON(t, env.server.URL+"/admin/logs", &entries)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, entries)
	})

	t.Run("Limit", func(t *testing.T) {
		var entries []logs.Entry
		getJSON(t, env.server.URL+"/admin/logs?n=1", &entries)
		assert.Len(t, entries, 1)
	})

	t.Run("InvalidN", func(t *testing.T) {
		resp, err := http.Get(env.server.URL + "/admin/logs?n=abc")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

/* ---------------- Route validation ---------------- */

func TestRouteValidation(t *testing.T) {
	env := setUpTestServer(t)

	t.Run("MethodNotAllowed", func(t *testing.T) {
		resp, err := http.Post(env.server.URL+"/api/subscription/verify-by-email", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("NotFound", func(t *testing.T) {
		resp, err := http.Get(env.server.URL + "/kv/anything")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/api/subscription/verify-by-email", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}
