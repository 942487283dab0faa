package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	schedulergrpc "github.com/kevin07696/subscription-scheduler/internal/api/grpc/scheduler"
	"github.com/kevin07696/subscription-scheduler/internal/app"
	"github.com/kevin07696/subscription-scheduler/internal/config"
	cronHandler "github.com/kevin07696/subscription-scheduler/internal/handlers/cron"
	subscriptionHandler "github.com/kevin07696/subscription-scheduler/internal/handlers/subscription"
	authMiddleware "github.com/kevin07696/subscription-scheduler/internal/middleware"
	"github.com/kevin07696/subscription-scheduler/internal/services/scheduler"
	"github.com/kevin07696/subscription-scheduler/pkg/middleware"
	"github.com/kevin07696/subscription-scheduler/pkg/observability"
	"github.com/kevin07696/subscription-scheduler/pkg/security"
	"github.com/kevin07696/subscription-scheduler/pkg/shutdown"
	"github.com/kevin07696/subscription-scheduler/pkg/timeutil"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting subscription scheduler",
		zap.String("environment", cfg.Environment),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	if err := app.ResolveSecrets(ctx, cfg, logger); err != nil {
		return err
	}

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	sm := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	// first registered, last closed
	sm.Register("dependencies", deps.Close)

	metricsServer := observability.StartMetricsServer(fmt.Sprintf(":%d", cfg.Server.MetricsPort), deps.Health, logger)
	sm.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})

	if cfg.Scheduler.RunInterval > 0 {
		worker := shutdown.NewPeriodicWorker("scheduler", cfg.Scheduler.RunInterval, logger)
		worker.Start(ctx, func(ctx context.Context) {
			runCtx, cancel := deps.Timeouts.CronContext(ctx)
			defer cancel()
			if _, err := deps.Runner.Trigger(runCtx, scheduler.TriggerTicker, timeutil.Now()); err != nil {
				logger.Error("Scheduled pass failed", zap.Error(err))
			}
		})
		sm.Register("scheduler-ticker", worker.Shutdown)
	}

	grpcServer, err := startGRPCServer(cfg, deps, logger)
	if err != nil {
		return err
	}
	sm.RegisterNoErr("grpc-server", grpcServer.GracefulStop)

	httpServer := newHTTPServer(cfg, deps, logger)
	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()
	sm.Register("http-server", httpServer.Shutdown)

	return sm.WaitForShutdown(ctx)
}

func newHTTPServer(cfg *config.Config, deps *app.App, logger *zap.Logger) *http.Server {
	cronMux := http.NewServeMux()
	cronHandler.NewSchedulerHandler(
		deps.Runner,
		deps.Reconciler,
		deps.Orders,
		logger,
		cfg.Cron.Secret,
		cfg.Scheduler.ReconcileLookback,
		deps.Timeouts,
	).RegisterRoutes(cronMux)

	subscriptionMux := http.NewServeMux()
	subscriptionHandler.NewHandler(deps.Subscriptions, logger, deps.Timeouts).RegisterRoutes(subscriptionMux)

	// cron endpoints are called by a single external scheduler
	rateLimiter := middleware.NewRateLimiter(cfg.Cron.RateLimit, cfg.Cron.Burst)

	mux := http.NewServeMux()
	mux.Handle("/cron/", observability.HTTPMiddleware("cron", rateLimiter.Middleware(cronMux)))
	mux.Handle("/webhooks/", observability.HTTPMiddleware("webhooks", cronMux))
	mux.Handle("/subscriptions/", observability.HTTPMiddleware("subscriptions",
		authMiddleware.RequireSecret(cfg.Cron.Secret, subscriptionMux)))

	headers := authMiddleware.NewSecurityHeaders(!cfg.IsProduction())

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           headers.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// a pass may run up to the cron timeout before responding
		WriteTimeout: deps.Timeouts.CronJob + 10*time.Second,
	}
}

func startGRPCServer(cfg *config.Config, deps *app.App, logger *zap.Logger) (*grpc.Server, error) {
	auth := authMiddleware.NewGRPCAuthInterceptor(cfg.Cron.Secret, logger,
		"/grpc.health.v1.Health/Check",
		"/grpc.health.v1.Health/Watch",
	)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			observability.UnaryServerInterceptor(),
			loggingInterceptor(logger),
			auth.UnaryServerInterceptor(),
		),
	)

	schedulergrpc.RegisterSchedulerServiceServer(grpcServer,
		schedulergrpc.NewHandler(deps.Runner, deps.Reconciler, cfg.Scheduler.ReconcileLookback, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(schedulergrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// for grpcurl
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("address", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	return grpcServer, nil
}

func initLogger(cfg *config.Config) *zap.Logger {
	logger, err := security.BuildZapLogger(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// Interceptors

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			logger.Error("gRPC request failed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		} else {
			logger.Info("gRPC request",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
			)
		}

		return resp, err
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				err = fmt.Errorf("internal server error")
			}
		}()

		return handler(ctx, req)
	}
}
