package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	subscriptionsvc "github.com/kevin07696/subscription-scheduler/internal/services/subscription"
	"github.com/kevin07696/subscription-scheduler/pkg/resilience"
	"github.com/kevin07696/subscription-scheduler/pkg/timeutil"
)

// LifecycleService is the set of subscription actions exposed over HTTP
type LifecycleService interface {
	Create(ctx context.Context, in subscriptionsvc.NewSubscription, now time.Time) (*domain.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	Activate(ctx context.Context, paymentOrderRef, paymentID string, now time.Time) (*domain.Subscription, error)
	Pause(ctx context.Context, id string, now time.Time) (*domain.Subscription, error)
	Resume(ctx context.Context, id string, now time.Time) (*domain.Subscription, error)
	Stop(ctx context.Context, id string, now time.Time) (*domain.Subscription, error)
	Cancel(ctx context.Context, id string, reason domain.CancelReason, now time.Time) (*domain.Subscription, error)
}

// Handler serves customer and admin lifecycle actions
type Handler struct {
	service  LifecycleService
	logger   *zap.Logger
	validate *validator.Validate
	timeouts *resilience.TimeoutConfig
	now      func() time.Time
}

// NewHandler creates a new subscription handler
func NewHandler(service LifecycleService, logger *zap.Logger, timeouts *resilience.TimeoutConfig) *Handler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Handler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
		timeouts: timeouts,
		now:      timeutil.Now,
	}
}

// RegisterRoutes mounts the lifecycle endpoints on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /subscriptions", h.Create)
	mux.HandleFunc("GET /subscriptions/{id}", h.Get)
	mux.HandleFunc("POST /subscriptions/{id}/pause", h.action("pause", h.service.Pause))
	mux.HandleFunc("POST /subscriptions/{id}/resume", h.action("resume", h.service.Resume))
	mux.HandleFunc("POST /subscriptions/{id}/stop", h.action("stop", h.service.Stop))
	mux.HandleFunc("POST /subscriptions/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /subscriptions/verify-payment", h.VerifyPayment)
}

// VerifyPaymentRequest confirms the payment behind a pending subscription
type VerifyPaymentRequest struct {
	PaymentOrderRef string `json:"payment_order_ref" validate:"required,max=128"`
	PaymentID       string `json:"payment_id" validate:"required,max=128"`
}

// CreateRequest opens a pending subscription at checkout
type CreateRequest struct {
	Address         domain.Address `json:"address"`
	CustomerID      string         `json:"customer_id" validate:"required,max=64"`
	CustomerName    string         `json:"customer_name" validate:"required,max=128"`
	CustomerEmail   string         `json:"customer_email" validate:"required,email"`
	CustomerContact string         `json:"customer_contact" validate:"omitempty,max=32"`
	Product         string         `json:"product" validate:"required,max=256"`
	VariantID       string         `json:"variant_id" validate:"required,max=64"`
	DeliveryDays    string         `json:"delivery_days" validate:"required"`
	TotalAmount     string         `json:"total_amount" validate:"required,numeric"`
	DeliveryFee     string         `json:"delivery_fee" validate:"omitempty,numeric"`
	PaymentOrderRef string         `json:"payment_order_ref" validate:"required,max=128"`
	Quantity        int            `json:"quantity" validate:"required,min=1,max=100"`
	Period          int            `json:"period" validate:"required,min=1,max=52"`
}

// CancelRequest carries who asked for the cancellation
type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=customer admin"`
}

// Create handles POST /subscriptions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	days, err := domain.ParseDeliveryDays(req.DeliveryDays)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid delivery_days")
		return
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid total_amount")
		return
	}
	fee := decimal.Zero
	if req.DeliveryFee != "" {
		if fee, err = decimal.NewFromString(req.DeliveryFee); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid delivery_fee")
			return
		}
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	sub, err := h.service.Create(ctx, subscriptionsvc.NewSubscription{
		Customer: domain.Customer{
			ID:      req.CustomerID,
			Name:    req.CustomerName,
			Email:   req.CustomerEmail,
			Contact: req.CustomerContact,
		},
		Address:         req.Address,
		TotalAmount:     total,
		DeliveryFee:     fee,
		Product:         req.Product,
		VariantID:       req.VariantID,
		PaymentOrderRef: req.PaymentOrderRef,
		DeliveryDays:    days,
		Quantity:        req.Quantity,
		Period:          req.Period,
	}, h.now())
	if err != nil {
		h.respondServiceError(w, "create", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sub)
}

// Get handles GET /subscriptions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	sub, err := h.service.GetSubscription(ctx, r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, "get", err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

func (h *Handler) action(
	name string,
	fn func(ctx context.Context, id string, now time.Time) (*domain.Subscription, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		h.logger.Info("Subscription action requested",
			zap.String("action", name),
			zap.String("subscription_id", id),
		)

		ctx, cancel := h.timeouts.HandlerContext(r.Context())
		defer cancel()

		sub, err := fn(ctx, id, h.now())
		if err != nil {
			h.respondServiceError(w, name, err)
			return
		}
		h.respondJSON(w, http.StatusOK, sub)
	}
}

// Cancel handles POST /subscriptions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}
	reason := domain.CancelReasonCustomer
	if req.Reason != "" {
		reason = domain.CancelReason(req.Reason)
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	sub, err := h.service.Cancel(ctx, r.PathValue("id"), reason, h.now())
	if err != nil {
		h.respondServiceError(w, "cancel", err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// VerifyPayment handles POST /subscriptions/verify-payment
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	sub, err := h.service.Activate(ctx, req.PaymentOrderRef, req.PaymentID, h.now())
	if err != nil {
		h.respondServiceError(w, "activate", err)
		return
	}

	h.logger.Info("Subscription activated",
		zap.String("subscription_id", sub.ID),
		zap.String("payment_order_ref", req.PaymentOrderRef),
	)
	h.respondJSON(w, http.StatusOK, sub)
}

// decode reads and validates a JSON body, answering 400 itself on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.respondError(w, http.StatusBadRequest, verrs[0].Field()+" failed "+verrs[0].Tag())
			return false
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// respondServiceError maps domain error codes to HTTP status codes
func (h *Handler) respondServiceError(w http.ResponseWriter, action string, err error) {
	code := http.StatusInternalServerError
	switch {
	case domain.IsNotFoundError(err):
		code = http.StatusNotFound
	case domain.IsDomainError(err, domain.ErrorCodeSubscriptionInvalidTransition),
		domain.IsDomainError(err, domain.ErrorCodeSubscriptionDuplicate):
		code = http.StatusConflict
	case domain.IsConfigurationError(err):
		code = http.StatusUnprocessableEntity
	}

	if code == http.StatusInternalServerError {
		h.logger.Error("Subscription action failed", zap.String("action", action), zap.Error(err))
		h.respondError(w, code, "internal error")
		return
	}
	h.logger.Warn("Subscription action rejected", zap.String("action", action), zap.Error(err))
	h.respondError(w, code, err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
