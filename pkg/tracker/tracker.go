package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracker tracks usage statistics per provider and per-item outcomes per job.
// It doubles as a prometheus.Collector.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats

	itemsMu sync.Mutex
	items   map[itemKey]int64
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits   int64
	CacheMisses int64
	APISuccess  int64
	APIFailures int64
	APIRetries  int64
}

type itemKey struct {
	job     string
	outcome string
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ProviderStats),
		items: make(map[itemKey]int64),
	}
}

// getStats returns the stats object for a provider, creating it if needed.
func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
}

func (t *Tracker) TrackAPISuccess(provider string) {
	atomic.AddInt64(&t.getStats(provider).APISuccess, 1)
}

func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIFailures, 1)
}

func (t *Tracker) TrackAPIRetry(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIRetries, 1)
}

// TrackItem counts one processed title or record for a job ("ingest",
// "history", "location") with its outcome ("ok", "failed", "skipped").
func (t *Tracker) TrackItem(job, outcome string) {
	t.itemsMu.Lock()
	t.items[itemKey{job, outcome}]++
	t.itemsMu.Unlock()
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats)
	for k, v := range t.stats {
		result[k] = ProviderStats{
			CacheHits:   atomic.LoadInt64(&v.CacheHits),
			CacheMisses: atomic.LoadInt64(&v.CacheMisses),
			APISuccess:  atomic.LoadInt64(&v.APISuccess),
			APIFailures: atomic.LoadInt64(&v.APIFailures),
			APIRetries:  atomic.LoadInt64(&v.APIRetries),
		}
	}
	return result
}

// Items returns the item count for a job and outcome.
func (t *Tracker) Items(job, outcome string) int64 {
	t.itemsMu.Lock()
	defer t.itemsMu.Unlock()
	return t.items[itemKey{job, outcome}]
}

// LogSummary writes one line per provider to the default logger, sorted by name.
func (t *Tracker) LogSummary() {
	snap := t.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := snap[name]
		slog.Info("Provider usage", "provider", name,
			"api_success", s.APISuccess, "api_failures", s.APIFailures, "api_retries", s.APIRetries,
			"cache_hits", s.CacheHits, "cache_misses", s.CacheMisses)
	}

	t.itemsMu.Lock()
	keys := make([]itemKey, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].job != keys[j].job {
			return keys[i].job < keys[j].job
		}
		return keys[i].outcome < keys[j].outcome
	})
	for _, k := range keys {
		slog.Info("Items", "job", k.job, "outcome", k.outcome, "count", t.items[k])
	}
	t.itemsMu.Unlock()
}

// --- Prometheus ---

var (
	descAPIRequests = prometheus.NewDesc(
		"stadiumhq_api_requests_total",
		"Outbound requests to the knowledge services by final result.",
		[]string{"provider", "result"}, nil)
	descAPIRetries = prometheus.NewDesc(
		"stadiumhq_api_retries_total",
		"Outbound request attempts that were retried.",
		[]string{"provider"}, nil)
	descCache = prometheus.NewDesc(
		"stadiumhq_cache_lookups_total",
		"Response cache lookups by result.",
		[]string{"provider", "result"}, nil)
	descItems = prometheus.NewDesc(
		"stadiumhq_items_total",
		"Titles or records processed by job and outcome.",
		[]string{"job", "outcome"}, nil)
)

// Describe implements prometheus.Collector.
func (t *Tracker) Describe(ch chan<- *prometheus.Desc) {
	ch <- descAPIRequests
	ch <- descAPIRetries
	ch <- descCache
	ch <- descItems
}

// Collect implements prometheus.Collector.
func (t *Tracker) Collect(ch chan<- prometheus.Metric) {
	for provider, s := range t.Snapshot() {
		ch <- prometheus.MustNewConstMetric(descAPIRequests, prometheus.CounterValue, float64(s.APISuccess), provider, "success")
		ch <- prometheus.MustNewConstMetric(descAPIRequests, prometheus.CounterValue, float64(s.APIFailures), provider, "failure")
		ch <- prometheus.MustNewConstMetric(descAPIRetries, prometheus.CounterValue, float64(s.APIRetries), provider)
		ch <- prometheus.MustNewConstMetric(descCache, prometheus.CounterValue, float64(s.CacheHits), provider, "hit")
		ch <- prometheus.MustNewConstMetric(descCache, prometheus.CounterValue, float64(s.CacheMisses), provider, "miss")
	}

	t.itemsMu.Lock()
	defer t.itemsMu.Unlock()
	for k, n := range t.items {
		ch <- prometheus.MustNewConstMetric(descItems, prometheus.CounterValue, float64(n), k.job, k.outcome)
	}
}

// Registry returns a registry exposing the tracker plus Go runtime metrics.
func (t *Tracker) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(t, collectors.NewGoCollector())
	return reg
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (t *Tracker) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
