package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortinpy85/jddb-sub001/pkg/limits"
	"github.com/fortinpy85/jddb-sub001/pkg/telemetry/logging"
	"github.com/fortinpy85/jddb-sub001/pkg/usage"
)

// DefaultPeriodHours is the stats window when period_hours is omitted.
const DefaultPeriodHours = 24

// MaxPeriodHours caps period_hours at one year.
const MaxPeriodHours = 24 * 366

// LimitsResponse is the body of GET /v1/limits/{service}.
type LimitsResponse struct {
	Service string                                `json:"service"`
	Limits  map[limits.Dimension]limits.RateLimit `json:"limits"`
	Status  []limits.RateLimitStatus              `json:"status"`
}

// DelayResponse is the body of GET /v1/limits/{service}/delay.
type DelayResponse struct {
	Service       string  `json:"service"`
	OperationType string  `json:"operation_type"`
	DelaySeconds  float64 `json:"delay_seconds"`
}

// ServicesResponse is the body of GET /v1/limits.
type ServicesResponse struct {
	Services []string `json:"services"`
}

// RecommendationsResponse is the body of GET /v1/usage/{service}/recommendations.
type RecommendationsResponse struct {
	Service         string                  `json:"service"`
	Recommendations []limits.Recommendation `json:"recommendations"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	limits       *limits.Service
	history      usage.HistoryStore
	queryTimeout time.Duration
	logger       *slog.Logger
}

func (h *handlers) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ServicesResponse{Services: h.limits.Services()})
}

func (h *handlers) getLimits(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	ctx := logging.WithService(r.Context(), service)

	cfg, ok := h.limits.Limits(service)
	if !ok {
		writeError(w, http.StatusNotFound, "no rate limits configured for "+service)
		return
	}

	status, err := h.limits.Snapshot(ctx, service)
	if err != nil {
		if errors.Is(err, limits.ErrUnknownService) {
			writeError(w, http.StatusNotFound, "no rate limits configured for "+service)
			return
		}
		h.logger.ErrorContext(ctx, "failed to read window state", "error", err)
		writeError(w, http.StatusServiceUnavailable, "window state unavailable")
		return
	}

	writeJSON(w, http.StatusOK, LimitsResponse{Service: service, Limits: cfg, Status: status})
}

func (h *handlers) getDelay(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	op := r.URL.Query().Get("operation")

	delay := h.limits.RecommendedDelay(service, op)
	writeJSON(w, http.StatusOK, DelayResponse{
		Service:       service,
		OperationType: op,
		DelaySeconds:  delay.Seconds(),
	})
}

func (h *handlers) getStats(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "usage history is not configured")
		return
	}
	service := mux.Vars(r)["service"]

	period := DefaultPeriodHours
	if raw := r.URL.Query().Get("period_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxPeriodHours {
			writeError(w, http.StatusBadRequest, "period_hours must be an integer between 1 and "+strconv.Itoa(MaxPeriodHours))
			return
		}
		period = n
	}

	ctx, cancel := h.queryContext(r.Context())
	defer cancel()
	ctx = logging.WithService(ctx, service)

	writeJSON(w, http.StatusOK, h.limits.UsageStats(ctx, h.history, service, period))
}

func (h *handlers) getRecommendations(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "usage history is not configured")
		return
	}
	service := mux.Vars(r)["service"]

	ctx, cancel := h.queryContext(r.Context())
	defer cancel()
	ctx = logging.WithService(ctx, service)

	writeJSON(w, http.StatusOK, RecommendationsResponse{
		Service:         service,
		Recommendations: h.limits.CostOptimizationRecommendations(ctx, h.history, service),
	})
}

func (h *handlers) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.queryTimeout > 0 {
		return context.WithTimeout(ctx, h.queryTimeout)
	}
	return context.WithCancel(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
