// Package app wires the shared runtime of the command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"stadiumhq/pkg/cache"
	"stadiumhq/pkg/config"
	"stadiumhq/pkg/db"
	"stadiumhq/pkg/ingest"
	"stadiumhq/pkg/logging"
	"stadiumhq/pkg/probe"
	"stadiumhq/pkg/request"
	"stadiumhq/pkg/store"
	"stadiumhq/pkg/tracker"
	"stadiumhq/pkg/version"
	"stadiumhq/pkg/wikidata"
	"stadiumhq/pkg/wikipedia"

	"github.com/schollz/progressbar/v3"
)

// DefaultConfigPath is where the tools look for their YAML file.
const DefaultConfigPath = "configs/stadiumhq.yaml"

// App holds the services shared by every command.
type App struct {
	Config    *config.Config
	DB        *db.DB
	Store     *store.SQLStore
	Cache     cache.Cacher
	Tracker   *tracker.Tracker
	Request   *request.Client
	Wikipedia *wikipedia.Client
	Wikidata  *wikidata.Client
	Ingest    *ingest.Service

	closers []func()
}

// New sets up logging and opens every backend described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Tracker: tracker.New()}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.closers = append(a.closers, cleanupLogs)

	slog.Info("StadiumHQ starting", "version", version.Version, "db", cfg.DB.Driver, "cache", cfg.Cache.Backend)

	a.DB, err = db.Open(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.Store = store.NewSQLStore(a.DB)
	a.closers = append(a.closers, func() { _ = a.Store.Close() })

	a.Cache, err = cache.New(&cfg.Cache, a.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if c, ok := a.Cache.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	if err := a.checkBackends(ctx); err != nil {
		return err
	}
	a.pruneCache()

	a.Request = request.New(a.Cache, a.Tracker, request.OptionsFrom(&cfg.Request))
	a.Wikipedia = wikipedia.NewClient(a.Request)
	a.Wikidata = wikidata.NewClient(a.Request, slog.With("component", "wikidata_client"))
	a.Ingest = ingest.NewService(cfg.Ingest, a.Wikipedia, a.Wikidata, a.Store, a.Tracker)
	return nil
}

func (a *App) checkBackends(ctx context.Context) error {
	probes := []probe.Probe{probe.Ping("Database", a.DB, true)}
	if p, ok := a.Cache.(probe.Pinger); ok {
		probes = append(probes, probe.Ping("Response cache", p, false))
	}
	if err := probe.Startup(ctx, probes...); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}
	return nil
}

// pruneCache drops expired rows of the database cache at startup.
func (a *App) pruneCache() {
	ttl := a.Config.Cache.TTL.Std()
	if _, ok := a.Cache.(*cache.DBCache); !ok || ttl <= 0 {
		return
	}
	n, err := a.DB.PruneCache(ttl)
	if err != nil {
		slog.Warn("Cache prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned expired cache entries", "count", n)
	}
}

// StartMetrics serves /metrics on addr until ctx ends. An empty addr falls
// back to the configured address; if both are empty nothing is started.
func (a *App) StartMetrics(ctx context.Context, addr string) {
	if addr == "" {
		addr = a.Config.Metrics.Address
	}
	if addr == "" {
		return
	}
	go func() {
		if err := a.Tracker.Serve(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewProgress returns a bar on w, or nil when disabled.
func NewProgress(enabled bool, w io.Writer, total int, description string) *progressbar.ProgressBar {
	if !enabled {
		return nil
	}
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
		progressbar.OptionFullWidth(),
	)
}
