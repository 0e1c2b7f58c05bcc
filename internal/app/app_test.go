package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"stadiumhq/pkg/cache"
	"stadiumhq/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DB.Path = filepath.Join(dir, "stadiumhq.db")
	cfg.Log.Server.Path = filepath.Join(dir, "logs", "stadiumhq.log")
	cfg.Log.Requests.Path = filepath.Join(dir, "logs", "requests.log")
	cfg.Cache.Backend = backend
	return cfg
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		wantCache any
	}{
		{"DB Cache", "db", &cache.DBCache{}},
		{"No Cache", "none", cache.Noop{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(t, tt.backend))
			require.NoError(t, err)
			defer a.Close()

			assert.IsType(t, tt.wantCache, a.Cache)
			assert.NotNil(t, a.Ingest)
			assert.NotNil(t, a.Wikipedia)
			assert.NotNil(t, a.Wikidata)

			_, ok := a.Store.GetState(context.Background(), "missing")
			assert.False(t, ok)
		})
	}
}

func TestNew_BadCache(t *testing.T) {
	cfg := testConfig(t, "redis")
	cfg.Cache.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewProgress(t *testing.T) {
	assert.Nil(t, NewProgress(false, &bytes.Buffer{}, 3, "ingest"))

	var buf bytes.Buffer
	bar := NewProgress(true, &buf, 3, "ingest")
	require.NotNil(t, bar)
	require.NoError(t, bar.Add(3))
	assert.Contains(t, buf.String(), "ingest")
}
