// Package cache stores raw responses from the knowledge services so re-runs and
// backfills do not refetch unchanged pages.
package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"stadiumhq/pkg/config"
	"stadiumhq/pkg/db"

	"github.com/redis/go-redis/v9"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// New returns the backend selected by cfg. The db backend shares d.
func New(cfg *config.CacheConfig, d *db.DB) (Cacher, error) {
	ttl := cfg.TTL.Std()
	switch cfg.Backend {
	case "", "none":
		return Noop{}, nil
	case "db":
		return NewDBCache(d, ttl), nil
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisCache(rc, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Noop never hits.
type Noop struct{}

func (Noop) GetCache(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) SetCache(context.Context, string, []byte) error { return nil }

// DBCache implements Cacher on the cache table of pkg/db.
type DBCache struct {
	db  *db.DB
	ttl time.Duration
}

// NewDBCache creates a new cache. A zero ttl never expires entries.
func NewDBCache(d *db.DB, ttl time.Duration) *DBCache {
	return &DBCache{db: d, ttl: ttl}
}

func (c *DBCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	query := "SELECT value FROM cache WHERE key = ?"
	args := []any{key}
	if c.ttl > 0 {
		query += " AND created_at >= ?"
		args = append(args, c.db.TimeArg(time.Now().Add(-c.ttl)))
	}

	var val []byte
	err := c.db.QueryRowContext(ctx, c.db.Rebind(query), args...).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Cache read failed", "key", key, "error", err)
		return nil, false
	}
	return maybeDecompress(val), true
}

func (c *DBCache) SetCache(ctx context.Context, key string, val []byte) error {
	// Transparent Compression
	if compressed, err := compress(val); err == nil {
		val = compressed
	}

	var query string
	if c.db.Dialect == db.Postgres {
		query = `INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, created_at = EXCLUDED.created_at`
	} else {
		query = `INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`
	}
	_, err := c.db.ExecContext(ctx, c.db.Rebind(query), key, val, c.db.TimeArg(time.Now()))
	return err
}

// RedisCache implements Cacher on a Redis server; expiry is left to Redis.
type RedisCache struct {
	rc     *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a cache over rc. A zero ttl keeps entries forever.
func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rc: rc, ttl: ttl, prefix: "stadiumhq:cache:"}
}

func (c *RedisCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rc.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Cache read failed", "key", key, "error", err)
		return nil, false
	}
	return maybeDecompress(val), true
}

func (c *RedisCache) SetCache(ctx context.Context, key string, val []byte) error {
	if compressed, err := compress(val); err == nil {
		val = compressed
	}
	return c.rc.Set(ctx, c.prefix+key, val, c.ttl).Err()
}

// PingContext checks that the server answers.
func (c *RedisCache) PingContext(ctx context.Context) error {
	return c.rc.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.rc.Close()
}

// --- Compression Pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// maybeDecompress returns data unchanged unless it carries a gzip header.
func maybeDecompress(data []byte) []byte {
	if len(data) < 3 || data[0] != 0x1f || data[1] != 0x8b {
		return data
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return out
}
