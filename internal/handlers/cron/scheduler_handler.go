package cron

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/middleware"
	"github.com/kevin07696/subscription-scheduler/internal/services/scheduler"
	"github.com/kevin07696/subscription-scheduler/pkg/resilience"
	"github.com/kevin07696/subscription-scheduler/pkg/timeutil"
)

// Runner performs one scheduler pass on behalf of a trigger
type Runner interface {
	Trigger(ctx context.Context, trigger string, now time.Time) (*scheduler.RunReport, error)
}

// Reconciler repairs local records from backend order history
type Reconciler interface {
	Reconcile(ctx context.Context, since, now time.Time) (*scheduler.ReconcileReport, error)
}

// OrderStatusUpdater applies fulfillment status changes reported by the backend
type OrderStatusUpdater interface {
	UpdateStatus(ctx context.Context, backendOrderID string, status domain.OrderStatus, now time.Time) (*domain.DeliveryOrder, error)
}

// SchedulerHandler serves the cron trigger endpoints
type SchedulerHandler struct {
	runner     Runner
	reconciler Reconciler
	orders     OrderStatusUpdater
	logger     *zap.Logger
	timeouts   *resilience.TimeoutConfig
	now        func() time.Time
	cronSecret string
	lookback   time.Duration
}

// NewSchedulerHandler creates a new scheduler cron handler.
// reconciler and orders may be nil; their endpoints then answer 404.
func NewSchedulerHandler(
	runner Runner,
	reconciler Reconciler,
	orders OrderStatusUpdater,
	logger *zap.Logger,
	cronSecret string,
	lookback time.Duration,
	timeouts *resilience.TimeoutConfig,
) *SchedulerHandler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &SchedulerHandler{
		runner:     runner,
		reconciler: reconciler,
		orders:     orders,
		logger:     logger,
		timeouts:   timeouts,
		now:        timeutil.Now,
		cronSecret: cronSecret,
		lookback:   lookback,
	}
}

// RegisterRoutes mounts the trigger endpoints on mux
func (h *SchedulerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/cron/run", h.Run)
	mux.HandleFunc("/cron/reconcile", h.Reconcile)
	mux.HandleFunc("/cron/health", h.HealthCheck)
	mux.HandleFunc("/webhooks/order-status", h.OrderStatusWebhook)
}

// RunRequest optionally pins the pass to an instant, for replays
type RunRequest struct {
	Now *string `json:"now"`
}

// RunResponse wraps the pass report for external monitoring
type RunResponse struct {
	Report  *scheduler.RunReport `json:"report,omitempty"`
	Error   string               `json:"error,omitempty"`
	Success bool                 `json:"success"`
}

// Run handles POST|GET /cron/run.
// 200 means the pass completed, even if some subscriptions errored; 500 means
// the batch itself failed and the external scheduler should alert.
func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Scheduler cron triggered",
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "only GET and POST methods are allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := h.now()
	var req RunRequest
	if r.Method == http.MethodPost && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Now != nil {
			parsed, err := time.Parse(time.RFC3339, *req.Now)
			if err != nil {
				h.respondError(w, http.StatusBadRequest, "now must be an RFC3339 timestamp")
				return
			}
			now = parsed.UTC()
		}
	}

	ctx, cancel := h.timeouts.CronContext(r.Context())
	defer cancel()

	report, err := h.runner.Trigger(ctx, scheduler.TriggerHTTP, now)
	if err != nil {
		h.logger.Error("Scheduler pass failed", zap.Error(err))
		h.respondJSON(w, http.StatusInternalServerError, RunResponse{Error: err.Error()})
		return
	}

	h.respondJSON(w, http.StatusOK, RunResponse{Success: true, Report: report})
}

// ReconcileRequest optionally overrides the lookback window
type ReconcileRequest struct {
	Since *string `json:"since"`
}

// Reconcile handles POST /cron/reconcile
func (h *SchedulerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.reconciler == nil {
		h.respondError(w, http.StatusNotFound, "reconciliation is not configured")
		return
	}

	now := h.now()
	since := now.Add(-h.lookback)
	var req ReconcileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Since != nil {
			parsed, err := time.Parse(time.RFC3339, *req.Since)
			if err != nil || !parsed.Before(now) {
				h.respondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp in the past")
				return
			}
			since = parsed.UTC()
		}
	}

	ctx, cancel := h.timeouts.CronContext(r.Context())
	defer cancel()

	report, err := h.reconciler.Reconcile(ctx, since, now)
	if err != nil {
		h.logger.Error("Reconciliation failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("Reconciliation completed",
		zap.Int("backend_orders", report.BackendOrders),
		zap.Int("orders_restored", report.OrdersRestored),
		zap.Int("subscriptions_advanced", report.SubscriptionsAdvanced),
		zap.Int("errors", len(report.Errors)),
	)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": len(report.Errors) == 0,
		"report":  report,
	})
}

// OrderStatusRequest is the body of the order status webhook
type OrderStatusRequest struct {
	BackendOrderID string `json:"backend_order_id"`
	Status         string `json:"status"`
}

// OrderStatusWebhook handles POST /webhooks/order-status
func (h *SchedulerHandler) OrderStatusWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.orders == nil {
		h.respondError(w, http.StatusNotFound, "order updates are not configured")
		return
	}

	var req OrderStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if req.BackendOrderID == "" || !status.IsValid() {
		h.respondError(w, http.StatusBadRequest, "backend_order_id and a valid status are required")
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	order, err := h.orders.UpdateStatus(ctx, req.BackendOrderID, status, h.now())
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			code = http.StatusNotFound
		case errors.Is(err, domain.ErrOrderInvalidTransition):
			code = http.StatusConflict
		}
		h.logger.Warn("Order status update failed",
			zap.String("backend_order_id", req.BackendOrderID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		h.respondError(w, code, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"order":   order,
	})
}

// HealthCheck handles GET /cron/health for monitoring
func (h *SchedulerHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}

// authenticateRequest accepts the secret in X-Cron-Secret or as a Bearer token
func (h *SchedulerHandler) authenticateRequest(r *http.Request) bool {
	return middleware.RequestHasSecret(r, h.cronSecret)
}

func (h *SchedulerHandler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError sends an error response
func (h *SchedulerHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
