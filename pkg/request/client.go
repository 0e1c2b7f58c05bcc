package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"stadiumhq/pkg/cache"
	"stadiumhq/pkg/config"
	"stadiumhq/pkg/logging"
	"stadiumhq/pkg/tracker"
	"stadiumhq/pkg/version"
)

var (
	defaultUserAgent = fmt.Sprintf("StadiumHQ-Ingest/%s (https://github.com/stadiumhq/stadiumhq)", version.Version)
)

// StatusError is returned for a non-2xx response that was not retried away.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d for %s", e.Status, e.URL)
}

// IsNotFound reports whether err is a 404 from an upstream service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

type refreshKey struct{}

// WithRefresh marks ctx so that requests made under it skip the cache lookup.
// Fresh responses are still written back, so later cached reads see them.
func WithRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

// IsRefresh reports whether ctx was marked by WithRefresh.
func IsRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// Options tune the client. Zero values fall back to defaults.
type Options struct {
	Timeout   time.Duration
	Retries   int
	RateGap   time.Duration
	UserAgent string
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// OptionsFrom maps the request section of the configuration.
func OptionsFrom(cfg *config.RequestConfig) Options {
	return Options{
		Timeout:   cfg.Timeout.Std(),
		Retries:   cfg.Retries,
		RateGap:   cfg.RateGap.Std(),
		UserAgent: cfg.UserAgent,
		BaseDelay: cfg.Backoff.BaseDelay.Std(),
		MaxDelay:  cfg.Backoff.MaxDelay.Std(),
	}
}

// Client handles HTTP requests with queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	opts       Options

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex // Protects queues map
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client. A nil cache disables caching.
func New(c cache.Cacher, t *tracker.Tracker, opts Options) *Client {
	if c == nil {
		c = cache.Noop{}
	}
	if t == nil {
		t = tracker.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      c,
		tracker:    t,
		backoff:    NewProviderBackoff(opts.BaseDelay, opts.MaxDelay),
		opts:       opts,
		queues:     make(map[string]chan job),
	}
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	// 1. Check Cache (Only if key is provided and no refresh was asked for)
	if cacheKey != "" && !IsRefresh(ctx) {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	j := job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan}

	c.dispatch(provider, j)

	// 3. Wait for Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

func normalizeProvider(host string) string {
	// Group all wikidata subdomains (www, query, etc.) into one "wikidata" provider for serialization
	if strings.HasSuffix(host, ".wikidata.org") || host == "wikidata.org" {
		return "wikidata"
	}
	if strings.HasSuffix(host, ".wikipedia.org") || host == "wikipedia.org" {
		return "wikipedia"
	}
	if strings.HasSuffix(host, ".wikimedia.org") || host == "wikimedia.org" {
		return "wikimedia"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// We block here if the queue is full, effectively throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		// Caller gave up before we could even enqueue
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		// Check context before processing
		if j.req.Context().Err() != nil {
			slog.Debug("Job dropped from queue (context expired)", "provider", provider, "error", j.req.Context().Err())
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		// Apply User-Agent (Default if not provided)
		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch {
			j.req.Header.Set("User-Agent", c.opts.UserAgent)
		}

		body, err := c.executeWithBackoff(provider, j.req)

		if err == nil {
			c.tracker.TrackAPISuccess(provider)
			// Cache result (Only if key is provided)
			if j.cacheKey != "" {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		} else {
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}

		// Safety gap to stay well under rate limits
		if c.opts.RateGap > 0 {
			time.Sleep(c.opts.RateGap)
		}
	}
}

// executeWithBackoff attempts the request, retrying network errors, 429 and 5xx.
// The delay between attempts comes from the provider backoff, so a throttled
// provider also slows down the requests queued behind this one.
func (c *Client) executeWithBackoff(provider string, req *http.Request) ([]byte, error) {
	maxAttempts := c.opts.Retries + 1
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.backoff.Wait(req.Context(), provider); err != nil {
			return nil, err
		}

		if attempt > 0 {
			c.tracker.TrackAPIRetry(provider)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Check if the error is a context cancellation from OUR side
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			c.backoff.RecordFailure(provider)
			logging.RequestLogger.Warn("Request failed", "provider", provider, "url", req.URL.String(), "attempt", attempt+1, "error", err)
			lastErr = fmt.Errorf("request %s: %w", req.URL, err)
			continue
		}

		logging.RequestLogger.Info("Request", "provider", provider, "url", req.URL.String(),
			"status", resp.StatusCode, "attempt", attempt+1, "duration", time.Since(start))

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			c.backoff.RecordFailure(provider)
			slog.Warn("API Backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)
			lastErr = &StatusError{URL: req.URL.String(), Status: resp.StatusCode}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &StatusError{URL: req.URL.String(), Status: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		c.backoff.RecordSuccess(provider)
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
