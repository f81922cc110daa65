package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/sohanagashimani/playlist-converter/internal/metrics"
	"github.com/sohanagashimani/playlist-converter/internal/repositories"
	"github.com/sohanagashimani/playlist-converter/internal/server"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
	"github.com/sohanagashimani/playlist-converter/internal/tasks"
)

// backend is an orchestrator wired to its stores and metrics.
type backend struct {
	orchestrator *tasks.Orchestrator
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	sharedIndex  bool

	db    *sql.DB
	redis *redis.Client
}

func (b *backend) Close() error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	errs = append(errs, b.db.Close())
	return errors.Join(errs...)
}

// newBackend opens the job store and active job index and builds an orchestrator over them.
//
// With [redis] enabled the active job index is shared between processes.
func (r *Runner) newBackend(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*backend, error) {
	if r.source == nil {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}
	if r.matcher == nil {
		return nil, fmt.Errorf("%w: credentials.youtube.proxy_url", shared.ErrMissingConfig)
	}

	db, err := shared.OpenStore(ctx, r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	b := &backend{db: db, registry: prometheus.NewRegistry()}

	var active tasks.ActiveJobIndex = repositories.NewActiveJobRepository(db)
	if r.config.Redis.Enabled {
		client, err := repositories.NewRedisClient(r.config.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
		}
		b.redis = client
		b.sharedIndex = true
		active = repositories.NewRedisActiveJobIndex(client, "")
		r.logger.Info("using shared active job index", "redis", r.config.Redis.Address)
	}

	b.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	b.metrics = metrics.New(b.registry)

	opts := tasks.OptionsFromConfig(r.config.Jobs)
	opts.SharedIndex = b.sharedIndex
	opts.Logger = r.logger
	opts.Metrics = b.metrics
	opts.Progress = progress

	b.orchestrator = tasks.NewOrchestrator(repositories.NewJobRepository(db), active, r.source, r.matcher, opts)
	return b, nil
}

// Serve runs the HTTP API until interrupted, then drains running conversions.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := r.newBackend(ctx, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	if !b.sharedIndex {
		if n, err := b.orchestrator.Recover(ctx); err != nil {
			r.logger.Warn("failed to recover orphaned conversions", "error", err)
		} else if n > 0 {
			r.logger.Info("marked orphaned conversions interrupted", "count", n)
		}
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	handler := server.NewAPI(b.orchestrator, server.APIOptions{
		Logger:     r.logger,
		Metrics:    b.metrics,
		Gatherer:   b.registry,
		RateLimit:  r.config.Server.RateLimit,
		RateBurst:  r.config.Server.RateBurst,
		TrustProxy: r.config.Server.TrustProxy,
	})

	r.logger.Debug("registered routes", "routes", handler.Routes())

	grace := r.config.Jobs.ShutdownGrace()
	serveErr := server.Serve(ctx, server.NewHTTPServer(addr, handler), ln, grace, r.logger)

	drainCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	r.logger.Info("draining conversions", "running", b.orchestrator.Running())
	if err := b.orchestrator.Drain(drainCtx); err != nil {
		r.logger.Error("drain incomplete", "error", err)
	}

	return serveErr
}
