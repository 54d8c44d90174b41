package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"subscription-verifier/internal/billing"
	"subscription-verifier/internal/health"
	"subscription-verifier/internal/logs"
	"subscription-verifier/internal/metrics"
	"subscription-verifier/internal/store"
	"subscription-verifier/internal/stripe"
	"subscription-verifier/internal/verifier"
)

// Response reasons for ok=false.
const (
	ReasonMissingEmail     = "missing_email"
	ReasonInvalidStripeKey = "invalid_stripe_key"
	ReasonInternalError    = "internal_error"
)

// Verifier is the lookup the verify endpoint calls.
type Verifier interface {
	LookupVerdict(ctx context.Context, email string) (billing.Verdict, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	verifier  Verifier
	store     *store.Store
	metrics   *metrics.Registry
	logger    *logs.Logger
	analyzer  *health.Analyzer
	publicDir string
}

// NewHandler creates a new API handler.
func NewHandler(
	v Verifier,
	cache *store.Store,
	reg *metrics.Registry,
	logger *logs.Logger,
	publicDir string,
) *Handler {
	return &Handler{
		verifier:  v,
		store:     cache,
		metrics:   reg,
		logger:    logger,
		analyzer:  health.NewAnalyzer(reg, logger),
		publicDir: publicDir,
	}
}

// verifiedResponse always carries name; it is null when the customer has
// neither a name nor an email.
type verifiedResponse struct {
	OK     bool    `json:"ok"`
	Name   *string `json:"name"`
	Status string  `json:"status"`
}

type deniedResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

func verdictResponse(v billing.Verdict) any {
	if !v.OK() {
		return deniedResponse{OK: false, Reason: string(v.Outcome)}
	}
	resp := verifiedResponse{OK: true, Status: v.Status}
	if v.DisplayName != "" {
		name := v.DisplayName
		resp.Name = &name
	}
	return resp
}

/* ---------------- GET /api/subscription/verify-by-email ---------------- */

func (h *Handler) VerifyByEmail(w http.ResponseWriter, r *http.Request) {
	email := verifier.Normalize(r.URL.Query().Get("email"))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, deniedResponse{Reason: ReasonMissingEmail})
		return
	}

	v, err := h.verifier.LookupVerdict(r.Context(), email)
	if err != nil {
		reason := ReasonInternalError
		if errors.Is(err, stripe.ErrAuthentication) {
			reason = ReasonInvalidStripeKey
		}
		if r.Context().Err() != nil {
			// client went away; nobody reads the response
			h.logger.Debug("lookup abandoned",
				"error", err,
				"request_id", RequestIDFromContext(r.Context()),
			)
			writeJSON(w, http.StatusInternalServerError, deniedResponse{Reason: reason})
			return
		}
		h.logger.Warn("lookup failed",
			"reason", reason,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, deniedResponse{Reason: reason})
		return
	}

	writeJSON(w, http.StatusOK, verdictResponse(v))
}

/* ---------------- GET / and /check ---------------- */

func (h *Handler) CheckPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.publicDir, "check.html"))
}

/* ---------------- GET /metrics ---------------- */

func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

/* ---------------- GET /health ---------------- */

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.Analyze())
}

/* ---------------- GET /admin/cache ---------------- */

type cacheStats struct {
	Size       int   `json:"size"`
	Capacity   int   `json:"capacity"`
	TTLSeconds int64 `json:"ttl_seconds"`
}

func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cacheStats{
		Size:       h.store.Len(),
		Capacity:   h.store.Capacity(),
		TTLSeconds: int64(h.store.TTL().Seconds()),
	})
}

/* ---------------- GET /admin/logs ---------------- */

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, h.logger.GetLast(n))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
