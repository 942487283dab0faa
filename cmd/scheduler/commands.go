package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	schedulergrpc "github.com/kevin07696/subscription-scheduler/internal/api/grpc/scheduler"
	"github.com/kevin07696/subscription-scheduler/internal/app"
	"github.com/kevin07696/subscription-scheduler/internal/config"
	"github.com/kevin07696/subscription-scheduler/internal/middleware"
	"github.com/kevin07696/subscription-scheduler/internal/services/scheduler"
	"github.com/kevin07696/subscription-scheduler/pkg/security"
	"github.com/kevin07696/subscription-scheduler/pkg/timeutil"
)

type options struct {
	now      string
	grpcAddr string
	secret   string
	timeout  time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "scheduler",
		Short:         "Run subscription delivery passes outside the server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.now, "now", "", "evaluate as of this RFC3339 instant instead of the clock")
	flags.StringVar(&opts.grpcAddr, "grpc-addr", "", "trigger a running server over gRPC instead of in-process")
	flags.StringVar(&opts.secret, "secret", os.Getenv("CRON_SECRET"), "trigger secret for --grpc-addr")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "upper bound for the whole command")

	root.AddCommand(newRunOnceCommand(opts), newReconcileCommand(opts))
	return root
}

func newRunOnceCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run one scheduler pass and print its report",
		Long: `Runs a single pass over due subscriptions and prints the JSON report.

Exits non-zero when the pass could not run. Per-subscription errors are
reported in the output and retried on the next pass.

Examples:
  scheduler run-once
  scheduler run-once --now 2026-03-04T10:00:00Z
  scheduler run-once --grpc-addr localhost:50051`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseInstant(opts.now, timeutil.Now())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			if opts.grpcAddr != "" {
				req := map[string]any{}
				if opts.now != "" {
					req["now"] = now.Format(time.RFC3339)
				}
				return remote(ctx, opts, cmd.OutOrStdout(), req, (*schedulergrpc.Client).RunOnce)
			}

			return local(ctx, cmd.OutOrStdout(), func(ctx context.Context, deps *app.App) (any, error) {
				return deps.Runner.Trigger(ctx, scheduler.TriggerCLI, now)
			})
		},
	}
}

func newReconcileCommand(opts *options) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Restore orders the backend accepted but the store never recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseInstant(opts.now, timeutil.Now())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			if opts.grpcAddr != "" {
				req := map[string]any{}
				if since != "" {
					req["since"] = since
				}
				return remote(ctx, opts, cmd.OutOrStdout(), req, (*schedulergrpc.Client).Reconcile)
			}

			return local(ctx, cmd.OutOrStdout(), func(ctx context.Context, deps *app.App) (any, error) {
				from, err := parseInstant(since, now.Add(-deps.Config.Scheduler.ReconcileLookback))
				if err != nil {
					return nil, err
				}
				if !from.Before(now) {
					return nil, fmt.Errorf("--since must be before %s", now.Format(time.RFC3339))
				}
				return deps.Reconciler.Reconcile(ctx, from, now)
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "RFC3339 start of the sweep (default now minus RECONCILE_LOOKBACK)")
	return cmd
}

func parseInstant(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := timeutil.ParseDate(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q: must be RFC3339", value)
	}
	return t, nil
}

// local wires the same dependencies as cmd/server and runs fn against them
func local(ctx context.Context, out io.Writer, fn func(context.Context, *app.App) (any, error)) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger, err := security.BuildZapLogger(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := app.ResolveSecrets(ctx, cfg, logger); err != nil {
		return err
	}

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()

	result, err := fn(ctx, deps)
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

type remoteCall func(*schedulergrpc.Client, context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)

func remote(ctx context.Context, opts *options, out io.Writer, req map[string]any, call remoteCall) error {
	if opts.secret == "" {
		return fmt.Errorf("--secret or CRON_SECRET is required with --grpc-addr")
	}

	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(opts.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.grpcAddr, err)
	}
	defer conn.Close()

	ctx = metadata.AppendToOutgoingContext(ctx, middleware.SecretHeader, opts.secret)
	resp, err := call(schedulergrpc.NewClient(conn), ctx, in)
	if err != nil {
		return err
	}
	return writeJSON(out, resp.AsMap())
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
