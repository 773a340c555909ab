// Package cli assembles a Workflow and its collaborators from configuration.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/config"
	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/internal/tracing"
	"github.com/aretw0/waypoint/pkg/adapters/file"
	httpAdapter "github.com/aretw0/waypoint/pkg/adapters/http"
	"github.com/aretw0/waypoint/pkg/adapters/memory"
	"github.com/aretw0/waypoint/pkg/adapters/process"
	"github.com/aretw0/waypoint/pkg/adapters/redis"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/observability"
	"github.com/aretw0/waypoint/pkg/persistence/middleware"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is a fully wired Workflow plus what the front doors share with it.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Workflow *waypoint.Workflow
	Store    ports.CheckpointStore
	Registry *prometheus.Registry
	Streams  *httpAdapter.StreamManager
	Redactor *middleware.Redactor

	closers []func(context.Context) error
}

// NewLogger builds the process logger from the log section.
// Logs always go to w so stdout stays free for command output and MCP stdio.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(w, level, cfg.JSON), nil
}

// Build wires stores, locking, metrics, tracing and the proposer according to cfg.
// Extra options are applied last.
func Build(cfg *config.Config, logger *slog.Logger, extra ...waypoint.Option) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Streams:  httpAdapter.NewStreamManager(logger),
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init("waypoint", waypoint.Version, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
		app.closers = append(app.closers, shutdown)
	}

	store, locker, err := app.buildStore()
	if err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	app.Store = store

	redactor, err := middleware.NewRedactor(cfg.Redact)
	if err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	app.Redactor = redactor

	metrics := observability.NewMetrics(app.Registry)
	opts := []waypoint.Option{
		waypoint.WithStore(store),
		waypoint.WithLogger(logger),
		waypoint.WithLifecycleHooks(domain.Combine(
			metrics.Hooks(),
			observability.LogHooks(logger),
			app.Streams.Hooks(),
		)),
	}
	if locker != nil {
		opts = append(opts, waypoint.WithLocker(locker), waypoint.WithLockTTL(cfg.Lock.TTL))
	}
	if cfg.Proposer != nil {
		p, err := process.NewProposer(*cfg.Proposer)
		if err != nil {
			_ = app.Close(context.Background())
			return nil, err
		}
		opts = append(opts, waypoint.WithProposer(p))
	}
	opts = append(opts, extra...)

	wf, err := waypoint.New(opts...)
	if err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	app.Workflow = wf

	logger.Debug("workflow ready",
		"store", cfg.Store.Kind,
		"encrypted", cfg.Store.Encryption.Key != "",
		"distributed_lock", locker != nil,
		"external_proposer", cfg.Proposer != nil,
	)
	return app, nil
}

func (a *App) buildStore() (ports.CheckpointStore, ports.DistributedLocker, error) {
	cfg := a.Config
	var (
		store  ports.CheckpointStore
		locker ports.DistributedLocker
	)

	switch cfg.Store.Kind {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreFile:
		store = file.New(cfg.Store.File.Path)
	case config.StoreRedis:
		rs, err := redis.NewFromURL(cfg.Store.Redis.URL,
			redis.WithPrefix(cfg.Store.Redis.Prefix),
			redis.WithTTL(cfg.Store.Redis.TTL),
		)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
		store = rs
		if cfg.Lock.Distributed {
			locker = redis.NewLocker(rs.Client(), cfg.Store.Redis.Prefix+"lock:")
		}
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	if cfg.Store.Encryption.Key != "" {
		active, fallbacks, err := cfg.Store.Encryption.Keys()
		if err != nil {
			return nil, nil, err
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		})
		if err != nil {
			return nil, nil, err
		}
		store = middleware.Chain(store, mw)
	}

	return store, locker, nil
}

// Close releases connections and flushes traces, in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// HTTPHandler returns the HTTP front door for the app.
func (a *App) HTTPHandler() http.Handler {
	return httpAdapter.NewHandler(a.Workflow,
		httpAdapter.WithStreams(a.Streams),
		httpAdapter.WithRedactor(a.Redactor),
		httpAdapter.WithMetrics(a.Registry),
		httpAdapter.WithLogger(a.Logger),
	)
}
