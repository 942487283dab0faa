package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kevin07696/subscription-scheduler/internal/handlers/cron"
	schedulersvc "github.com/kevin07696/subscription-scheduler/internal/services/scheduler"
	"github.com/kevin07696/subscription-scheduler/pkg/timeutil"
)

// Handler implements SchedulerServiceServer on top of the runner
type Handler struct {
	runner     cron.Runner
	reconciler cron.Reconciler
	logger     *zap.Logger
	now        func() time.Time
	lookback   time.Duration
}

// NewHandler creates a new gRPC scheduler handler. reconciler may be nil.
func NewHandler(runner cron.Runner, reconciler cron.Reconciler, lookback time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		runner:     runner,
		reconciler: reconciler,
		logger:     logger,
		now:        timeutil.Now,
		lookback:   lookback,
	}
}

// RunOnce performs one scheduler pass. An optional "now" field (RFC3339)
// pins the pass to an instant.
func (h *Handler) RunOnce(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	now, err := h.instant(req, "now", h.now())
	if err != nil {
		return nil, err
	}

	report, err := h.runner.Trigger(ctx, schedulersvc.TriggerGRPC, now)
	if err != nil {
		h.logger.Error("Scheduler pass failed", zap.Error(err))
		return nil, status.Error(codes.Internal, fmt.Sprintf("scheduler pass failed: %v", err))
	}

	return toStruct(report)
}

// Reconcile runs a reconciliation sweep. An optional "since" field (RFC3339)
// overrides the configured lookback.
func (h *Handler) Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if h.reconciler == nil {
		return nil, status.Error(codes.Unimplemented, "reconciliation is not configured")
	}

	now := h.now()
	since, err := h.instant(req, "since", now.Add(-h.lookback))
	if err != nil {
		return nil, err
	}
	if !since.Before(now) {
		return nil, status.Error(codes.InvalidArgument, "since must be in the past")
	}

	report, err := h.reconciler.Reconcile(ctx, since, now)
	if err != nil {
		h.logger.Error("Reconciliation failed", zap.Error(err))
		return nil, status.Error(codes.Internal, fmt.Sprintf("reconciliation failed: %v", err))
	}

	return toStruct(report)
}

func (h *Handler) instant(req *structpb.Struct, field string, fallback time.Time) (time.Time, error) {
	v, ok := req.GetFields()[field]
	if !ok || v.GetStringValue() == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, v.GetStringValue())
	if err != nil {
		return time.Time{}, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be an RFC3339 timestamp", field))
	}
	return t.UTC(), nil
}

// toStruct converts a report through its JSON form so field names match the HTTP trigger
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode report: %v", err))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode report: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode report: %v", err))
	}
	return out, nil
}
