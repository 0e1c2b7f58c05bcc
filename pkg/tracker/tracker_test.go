package tracker

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTracker(t *testing.T) {
	tr := New()
	provider := "test.provider"

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("Expected empty stats, got %d", len(stats))
	}

	// Test Tracking
	tr.TrackCacheHit(provider)
	tr.TrackCacheMiss(provider)
	tr.TrackAPISuccess(provider)
	tr.TrackAPIFailure(provider)
	tr.TrackAPIRetry(provider)

	// Verify Snapshot
	stats = tr.Snapshot()
	pStats, ok := stats[provider]
	if !ok {
		t.Fatalf("Expected stats for provider %s", provider)
	}

	if pStats.CacheHits != 1 {
		t.Errorf("Expected 1 CacheHit, got %d", pStats.CacheHits)
	}
	if pStats.CacheMisses != 1 {
		t.Errorf("Expected 1 CacheMiss, got %d", pStats.CacheMisses)
	}
	if pStats.APISuccess != 1 {
		t.Errorf("Expected 1 APISuccess, got %d", pStats.APISuccess)
	}
	if pStats.APIFailures != 1 {
		t.Errorf("Expected 1 APIFailure, got %d", pStats.APIFailures)
	}
	if pStats.APIRetries != 1 {
		t.Errorf("Expected 1 APIRetry, got %d", pStats.APIRetries)
	}
}

func TestTrackItem(t *testing.T) {
	tr := New()
	tr.TrackItem("ingest", "ok")
	tr.TrackItem("ingest", "ok")
	tr.TrackItem("ingest", "failed")

	if got := tr.Items("ingest", "ok"); got != 2 {
		t.Errorf("Expected 2 ok items, got %d", got)
	}
	if got := tr.Items("backfill_history", "ok"); got != 0 {
		t.Errorf("Expected 0 for unseen job, got %d", got)
	}
}

func TestCollector(t *testing.T) {
	tr := New()
	tr.TrackAPISuccess("wikidata")
	tr.TrackAPISuccess("wikidata")
	tr.TrackCacheHit("wikipedia")
	tr.TrackItem("ingest", "ok")

	expected := `
# HELP stadiumhq_items_total Titles or records processed by job and outcome.
# TYPE stadiumhq_items_total counter
stadiumhq_items_total{job="ingest",outcome="ok"} 1
`
	if err := testutil.CollectAndCompare(tr, strings.NewReader(expected), "stadiumhq_items_total"); err != nil {
		t.Errorf("unexpected items metric: %v", err)
	}

	// 2 providers x 5 series + 1 item series
	if n := testutil.CollectAndCount(tr); n != 11 {
		t.Errorf("Expected 11 series, got %d", n)
	}
}
