package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/lock"
	"github.com/mattjoyce/taskengine/internal/log"
	"github.com/mattjoyce/taskengine/internal/metrics"
	"github.com/mattjoyce/taskengine/internal/queue"
	"github.com/mattjoyce/taskengine/internal/tracking"
	"github.com/mattjoyce/taskengine/internal/worker"
)

func registerWorkerCommand(root *cobra.Command, a *app) {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued jobs until interrupted",
		Long: `Run queued jobs one at a time until interrupted. Step outcomes are
recorded in the state database. Only one worker may serve a state database
at a time. When worker.metrics_listen is set, /metrics
and /healthz are served on that address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return exitWith(exitException, err)
			}
			logger := log.WithComponent("worker")

			wl, err := lock.Acquire(lock.PathFor(cfg.State.Path))
			if err != nil {
				return exitWith(exitException, err)
			}
			defer func() { _ = wl.Release() }()

			db, err := openState(cmd.Context(), a)
			if err != nil {
				return exitWith(exitException, err)
			}
			defer func() { _ = db.Close() }()

			reg, err := a.plugins()
			if err != nil {
				return exitWith(exitException, err)
			}

			m := metrics.New()
			w := worker.New(queue.New(db), reg, cfg,
				worker.WithSink(tracking.New(db)),
				worker.WithSink(m),
				worker.WithObserver(m),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Worker.MetricsListen != "" {
				srv := &http.Server{
					Addr:              cfg.Worker.MetricsListen,
					Handler:           m.Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					logger.Info("metrics listening", "addr", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", "error", err)
					}
				}()
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}

			if once {
				for {
					ran, err := w.RunOnce(ctx)
					if err != nil {
						return exitWith(exitException, err)
					}
					if !ran || ctx.Err() != nil {
						return nil
					}
				}
			}

			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return exitWith(exitException, err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Drain the queue and exit instead of polling")
	root.AddCommand(cmd)
}
