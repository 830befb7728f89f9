package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/health"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/options"
	"github.com/exploopio/scanimport/pkg/pipeline"
	"github.com/exploopio/scanimport/pkg/server"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		addr    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingest service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var extra []options.Option
			if addr != "" {
				extra = append(extra, options.WithServerAddr(addr))
			}
			if workers > 0 {
				extra = append(extra, options.WithWorkers(workers))
			}
			cfg, logger, err := g.load(cmd, extra...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			collector, err := metrics.NewPrometheusCollector(nil)
			if err != nil {
				return err
			}

			inv, err := openInventory(ctx, cfg.Inventory, logger, collector)
			if err != nil {
				return err
			}
			defer inv.Close()

			driver := pipeline.NewDriver(inv, pipeline.WithLogger(logger), pipeline.WithMetrics(collector))
			pool := pipeline.NewPool(&pipeline.PoolConfig{
				QueueSize: cfg.Pipeline.QueueSize,
				Workers:   cfg.Pipeline.Workers,
				RateLimit: cfg.Pipeline.RateLimit,
				Burst:     cfg.Pipeline.Burst,
				Timeout:   cfg.Pipeline.Timeout,
				Logger:    logger,
				Metrics:   collector,
			}, driver)

			h := newHealth(cfg, inv, pool)

			// The pool outlives ctx so queued reports drain on shutdown.
			if err := pool.Start(context.Background()); err != nil {
				return err
			}

			srv := server.New(driver, &server.Config{
				MaxReportSize: cfg.Pipeline.MaxReportSize,
				Pool:          pool,
				Health:        h,
				Logger:        logger,
				Metrics:       collector,
			})
			h.SetReady(true)

			serveErr := srv.ListenAndServe(ctx, cfg.Server.Addr,
				cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout)

			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := pool.Stop(stopCtx); err != nil {
				logger.Warn("pool did not drain: %v", err)
			}
			logStats(logger, pool.GetStats())
			return serveErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of async workers")
	return cmd
}

func newHealth(cfg *options.Config, inv *backend, pool *pipeline.Pool) *health.Handler {
	opts := []health.HandlerOption{health.WithVersion(version)}
	if cfg.Server.HideHealthDetails {
		opts = append(opts, health.WithHideDetails())
	}
	h := health.NewHandler(opts...)
	h.Register("inventory", &health.InventoryCheck{PingFunc: inv.Ping})
	h.Register("queue", &health.QueueCheck{Length: pool.QueueLength, Capacity: cfg.Pipeline.QueueSize})
	h.Register("memory", &health.MemoryCheck{})
	h.Register("system_memory", &health.SystemMemoryCheck{MaxUsagePercent: 95})
	if inv.dataDir != "" {
		h.Register("disk", &health.DiskCheck{Path: inv.dataDir, MinFreePercent: 5})
	}
	return h
}

func logStats(logger core.Logger, stats *pipeline.Stats) {
	logger.Info("pool: %d submitted, %d completed, %d failed, %d bytes",
		stats.Submitted, stats.Completed, stats.Failed, stats.TotalBytes)
}
