package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stadiumhq/pkg/cache"
	"stadiumhq/pkg/db"
	"stadiumhq/pkg/tracker"
)

func testOptions() Options {
	return Options{Retries: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
}

func TestGet_Sequential(t *testing.T) {
	// Mock Server using simple handler that sleeps to prove sequential execution
	var conc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)

		if current > 1 {
			// Different providers run in parallel, but svr is a single host.
			t.Errorf("Concurrency detected! Expected sequential.")
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	client := New(nil, tracker.New(), testOptions())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestGet_Retry(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("success"))
	}))
	defer svr.Close()

	tr := tracker.New()
	client := New(nil, tr, testOptions())

	body, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if string(body) != "success" {
		t.Errorf("Expected 'success', got '%s'", string(body))
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}

	host := normalizeProvider(svr.Listener.Addr().String())
	if got := tr.Snapshot()[host].APIRetries; got != 2 {
		t.Errorf("Expected 2 retries tracked, got %d", got)
	}
}

func TestGet_StatusErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantAttempts int32
		wantNotFound bool
	}{
		{"NotFound_NoRetry", http.StatusNotFound, 1, true},
		{"BadRequest_NoRetry", http.StatusBadRequest, 1, false},
		{"ServerError_Exhausts", http.StatusBadGateway, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.status)
			}))
			defer svr.Close()

			client := New(nil, nil, testOptions())
			_, err := client.Get(context.Background(), svr.URL+"/page", "")
			if err == nil {
				t.Fatal("expected error")
			}

			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected StatusError, got %T: %v", err, err)
			}
			if se.Status != tt.status {
				t.Errorf("status = %d, want %d", se.Status, tt.status)
			}
			if se.URL != svr.URL+"/page" {
				t.Errorf("url = %q", se.URL)
			}
			if IsNotFound(err) != tt.wantNotFound {
				t.Errorf("IsNotFound = %v, want %v", IsNotFound(err), tt.wantNotFound)
			}
			if n := atomic.LoadInt32(&attempts); n != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", n, tt.wantAttempts)
			}
		})
	}
}

func TestGet_CacheAndUserAgent(t *testing.T) {
	var hits int32
	var gotUA atomic.Value
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer svr.Close()

	d, err := db.Init(filepath.Join(t.TempDir(), "client_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	opts := testOptions()
	opts.UserAgent = "StadiumHQ-Test/1.0 (ops@example.org)"
	tr := tracker.New()
	client := New(cache.NewDBCache(d, time.Hour), tr, opts)

	for i := 0; i < 2; i++ {
		body, err := client.Get(context.Background(), svr.URL, "test_key")
		if err != nil {
			t.Fatalf("Get #%d failed: %v", i, err)
		}
		if string(body) != "payload" {
			t.Errorf("Get #%d body = %q", i, body)
		}
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected 1 upstream hit, got %d", n)
	}
	if ua, _ := gotUA.Load().(string); ua != opts.UserAgent {
		t.Errorf("User-Agent = %q, want %q", ua, opts.UserAgent)
	}
	host := normalizeProvider(svr.Listener.Addr().String())
	if s := tr.Snapshot()[host]; s.CacheHits != 1 || s.CacheMisses != 1 {
		t.Errorf("unexpected cache stats: %+v", s)
	}
}

func TestGet_Refresh(t *testing.T) {
	var hits int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			_, _ = w.Write([]byte("v1"))
			return
		}
		_, _ = w.Write([]byte("v2"))
	}))
	defer svr.Close()

	d, err := db.Init(filepath.Join(t.TempDir(), "refresh_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	client := New(cache.NewDBCache(d, time.Hour), tracker.New(), testOptions())
	ctx := context.Background()

	if body, err := client.Get(ctx, svr.URL, "refresh_key"); err != nil || string(body) != "v1" {
		t.Fatalf("first Get = %q, %v", body, err)
	}
	if body, err := client.Get(WithRefresh(ctx), svr.URL, "refresh_key"); err != nil || string(body) != "v2" {
		t.Fatalf("refreshed Get = %q, %v; want upstream v2", body, err)
	}
	// The refreshed body replaced the cached one.
	if body, err := client.Get(ctx, svr.URL, "refresh_key"); err != nil || string(body) != "v2" {
		t.Fatalf("cached Get after refresh = %q, %v", body, err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected 2 upstream hits, got %d", n)
	}
	if IsRefresh(ctx) || !IsRefresh(WithRefresh(ctx)) {
		t.Error("IsRefresh does not follow WithRefresh")
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer svr.Close()

	client := New(nil, nil, testOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Get(ctx, svr.URL, ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	c := New(nil, nil, Options{})
	if c.opts.UserAgent != defaultUserAgent {
		t.Errorf("expected default UA, got %q", c.opts.UserAgent)
	}
	if c.httpClient.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", c.httpClient.Timeout)
	}
}
