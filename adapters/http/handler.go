// Package http provides the HTTP surface of the quota gate.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/domain/status"
	"github.com/artpar/quotagate/ports"
)

// maxRequestBytes caps buffered request bodies.
const maxRequestBytes = 1 << 20

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QuotaHandler exposes the quota engine over HTTP.
type QuotaHandler struct {
	gate     *app.Gate
	quotas   *app.QuotaService
	subs     *app.SubscriptionService
	webhooks *app.BillingWebhookService
	upstream ports.Upstream
	logger   zerolog.Logger

	historyPageSize int
}

// NewQuotaHandler creates the HTTP handler for the quota engine.
func NewQuotaHandler(
	gate *app.Gate,
	quotas *app.QuotaService,
	subs *app.SubscriptionService,
	webhooks *app.BillingWebhookService,
	upstream ports.Upstream,
	logger zerolog.Logger,
) *QuotaHandler {
	return &QuotaHandler{
		gate:            gate,
		quotas:          quotas,
		subs:            subs,
		webhooks:        webhooks,
		upstream:        upstream,
		logger:          logger,
		historyPageSize: 50,
	}
}

// SetHistoryPageSize caps entries returned per history request.
func (h *QuotaHandler) SetHistoryPageSize(n int) {
	if n > 0 {
		h.historyPageSize = n
	}
}

// QuotaStatus handles GET /v1/accounts/{accountID}/quota: the display
// projection of the account's current standing. Read-only; it never
// consumes quota.
func (h *QuotaHandler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing_account", "account id is required")
		return
	}

	decision := h.quotas.Decide(r.Context(), accountID)
	if decision.Degraded && !decision.CanUse {
		writeError(w, http.StatusServiceUnavailable, "quota_unavailable",
			"usage data temporarily unavailable, try again shortly")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		AccountID: accountID,
		Standing:  decision.Standing.String(),
		Display:   status.Project(decision),
	})
}

type statusResponse struct {
	AccountID string               `json:"account_id"`
	Standing  string               `json:"standing"`
	Display   status.DisplayStatus `json:"display"`
}

type executeRequest struct {
	Feature string          `json:"feature"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type executeResponse struct {
	Result  json.RawMessage      `json:"result"`
	Display status.DisplayStatus `json:"display"`
}

// ExecuteFeature handles POST /v1/accounts/{accountID}/execute: run one
// metered feature through the gate against the configured upstream.
func (h *QuotaHandler) ExecuteFeature(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing_account", "account id is required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	var req executeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Feature == "" {
		writeError(w, http.StatusBadRequest, "missing_feature", "feature is required")
		return
	}

	out, err := app.Execute(r.Context(), h.gate, accountID, req.Feature, func(ctx context.Context) ([]byte, error) {
		return h.upstream.Invoke(ctx, accountID, req.Feature, req.Payload)
	})
	switch {
	case errors.Is(err, app.ErrQuotaUnavailable):
		// Not an exhaustion: the counter state is unknown, so no reset
		// message. Retryable.
		writeError(w, http.StatusServiceUnavailable, "quota_unavailable",
			"usage data temporarily unavailable, try again shortly")
		return
	case errors.Is(err, app.ErrQuotaExhausted):
		// 429 with the projected display state so clients can render the
		// reset message without a second request.
		writeJSON(w, http.StatusTooManyRequests, statusResponse{
			AccountID: accountID,
			Standing:  out.Decision.Standing.String(),
			Display:   status.Project(out.Decision),
		})
		return
	case err != nil:
		h.logger.Error().Err(err).
			Str("account_id", accountID).
			Str("feature", req.Feature).
			Msg("feature execution failed")
		writeError(w, http.StatusBadGateway, "upstream_error", "feature execution failed")
		return
	}

	result := out.Value
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, executeResponse{
		Result:  result,
		Display: status.Project(out.Decision),
	})
}

// UsageHistory handles GET /v1/accounts/{accountID}/history: the
// append-only audit trail, newest first.
func (h *QuotaHandler) UsageHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing_account", "account id is required")
		return
	}

	limit := h.historyPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	entries, err := h.quotas.History(r.Context(), accountID, limit)
	if err != nil {
		h.logger.Error().Err(err).
			Str("account_id", accountID).
			Msg("history listing failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list usage history")
		return
	}

	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			ID:        e.ID,
			Feature:   e.FeatureType,
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, historyResponse{AccountID: accountID, Entries: items})
}

type historyResponse struct {
	AccountID string        `json:"account_id"`
	Entries   []historyItem `json:"entries"`
}

type historyItem struct {
	ID        string    `json:"id"`
	Feature   string    `json:"feature"`
	Timestamp time.Time `json:"timestamp"`
}

// ResumeSubscription handles POST
// /v1/accounts/{accountID}/subscription/resume: clear a pending
// cancellation.
func (h *QuotaHandler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing_account", "account id is required")
		return
	}

	if err := h.subs.Resume(r.Context(), accountID); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no subscription for account")
			return
		}
		h.logger.Error().Err(err).
			Str("account_id", accountID).
			Msg("subscription resume failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to resume subscription")
		return
	}

	view := h.subs.GetView(r.Context(), accountID)
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":           accountID,
		"status":               string(view.Status),
		"cancel_at_period_end": view.CancelAtPeriodEnd,
	})
}

type billingWebhookRequest struct {
	Type             string     `json:"type"`
	AccountID        string     `json:"account_id"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// BillingWebhook handles POST /webhooks/billing: subscription lifecycle
// events from the billing provider.
func (h *QuotaHandler) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	var req billingWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	err = h.webhooks.Handle(r.Context(), app.BillingEvent{
		Type:             req.Type,
		AccountID:        req.AccountID,
		CurrentPeriodEnd: req.CurrentPeriodEnd,
		OccurredAt:       req.OccurredAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_event", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthHandler provides liveness and readiness endpoints.
type HealthHandler struct {
	upstream HealthChecker
}

// HealthChecker is the slice of ports.Upstream the health handler needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewHealthHandler creates a health handler. A nil checker makes
// readiness equal liveness.
func NewHealthHandler(upstream HealthChecker) *HealthHandler {
	return &HealthHandler{upstream: upstream}
}

// Liveness reports that the process is running.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness reports whether the service can do useful work.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.upstream != nil {
		if err := h.upstream.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse is the version endpoint payload.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// VersionHandler returns a handler reporting the given build version.
// An empty version reads as a local "dev" build.
func VersionHandler(version string) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			Version: version,
			Service: "quotagate",
		})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	// MetricsHandler, when set, is mounted at MetricsPath.
	MetricsHandler http.Handler
	MetricsPath    string

	// Version is the build version reported by /version.
	Version string
}

// NewRouter creates the main HTTP router.
func NewRouter(quota *QuotaHandler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", health.Liveness)
	r.Get("/healthz/ready", health.Readiness)
	r.Get("/version", VersionHandler(cfg.Version))

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler)
	}

	r.Route("/v1/accounts/{accountID}", func(r chi.Router) {
		r.Get("/quota", quota.QuotaStatus)
		r.Post("/execute", quota.ExecuteFeature)
		r.Get("/history", quota.UsageHistory)
		r.Post("/subscription/resume", quota.ResumeSubscription)
	})

	r.Post("/webhooks/billing", quota.BillingWebhook)

	return r
}

// NewLoggingMiddleware creates request logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Health checks and metrics scrapes would drown the log.
			if strings.HasPrefix(r.URL.Path, "/healthz") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, ErrorResponse{Error: ErrorDetail{Code: errCode, Message: message}})
}
