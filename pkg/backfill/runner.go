package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stadiumhq/pkg/model"
	"stadiumhq/pkg/store"
	"stadiumhq/pkg/tracker"
)

// ErrSkip is returned by a job when the source has nothing to fill in.
var ErrSkip = errors.New("nothing found")

// Job fills one missing field on a stored stadium.
type Job interface {
	Name() string
	Field() model.MissingField
	Process(ctx context.Context, st *model.Stadium) error
}

// Store is what the runner needs from storage.
type Store interface {
	ListStadiumsMissing(ctx context.Context, field model.MissingField, afterID string, limit int) ([]*model.Stadium, error)
	store.StateStore
}

// Status of one processed record.
type Status string

const (
	StatusOK     Status = "ok"
	StatusSkip   Status = "skipped"
	StatusFailed Status = "failed"
)

// Outcome reports one processed record.
type Outcome struct {
	Job     string
	Stadium *model.Stadium
	Status  Status
	Err     error
}

// Stats summarises a run.
type Stats struct {
	Pages     int
	Processed int
	Updated   int
	Skipped   int
	Failed    int
}

// Options tunes a Runner.
type Options struct {
	Resume        bool          // Persist the cursor and continue from it
	RecordTimeout time.Duration // Per-record bound, zero disables
	OnOutcome     func(Outcome)
}

// Runner pages through records missing a field and hands each to a Job.
type Runner struct {
	store   Store
	job     Job
	tracker *tracker.Tracker
	opts    Options
	logger  *slog.Logger
}

// NewRunner creates a runner for job. A nil tracker disables item counting.
func NewRunner(s Store, job Job, t *tracker.Tracker, opts Options) *Runner {
	return &Runner{
		store:   s,
		job:     job,
		tracker: t,
		opts:    opts,
		logger:  slog.With("component", "backfill", "job", job.Name()),
	}
}

// CursorKey is the state key holding the last processed id of a job.
func CursorKey(job string) string {
	return "backfill." + job + ".cursor"
}

// Run processes pages of batchSize until a page comes back empty.
// A failing record is logged and counted; only storage listing errors and
// cancellation end the run early.
func (r *Runner) Run(ctx context.Context, batchSize int) (Stats, error) {
	var stats Stats
	if batchSize < 1 {
		return stats, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	key := CursorKey(r.job.Name())
	after := ""
	if r.opts.Resume {
		if v, ok := r.store.GetState(ctx, key); ok && v != "" {
			after = v
			r.logger.Info("Resuming backfill", "after", after)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := r.store.ListStadiumsMissing(ctx, r.job.Field(), after, batchSize)
		if err != nil {
			return stats, fmt.Errorf("list records after %q: %w", after, err)
		}
		stats.Pages++
		if len(page) == 0 {
			break
		}

		for _, st := range page {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			r.process(ctx, st, &stats)
		}

		after = page[len(page)-1].ID
		if r.opts.Resume {
			if err := r.store.SetState(ctx, key, after); err != nil {
				r.logger.Warn("Failed to persist cursor", "after", after, "error", err)
			}
		}
		r.logger.Debug("Page done", "page", stats.Pages, "size", len(page), "after", after)
	}

	if r.opts.Resume {
		if err := r.store.DeleteState(ctx, key); err != nil {
			r.logger.Warn("Failed to clear cursor", "error", err)
		}
	}
	r.logger.Info("Backfill complete",
		"pages", stats.Pages,
		"processed", stats.Processed,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return stats, nil
}

func (r *Runner) process(ctx context.Context, st *model.Stadium, stats *Stats) {
	if r.opts.RecordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RecordTimeout)
		defer cancel()
	}

	stats.Processed++
	o := Outcome{Job: r.job.Name(), Stadium: st}
	err := r.job.Process(ctx, st)
	switch {
	case err == nil:
		stats.Updated++
		o.Status = StatusOK
	case errors.Is(err, ErrSkip):
		stats.Skipped++
		o.Status = StatusSkip
		o.Err = err
	default:
		stats.Failed++
		o.Status = StatusFailed
		o.Err = err
		r.logger.Warn("Record failed", "id", st.ID, "title", st.DisplayTitle(), "error", err)
	}

	if r.tracker != nil {
		r.tracker.TrackItem(r.job.Name(), string(o.Status))
	}
	if r.opts.OnOutcome != nil {
		r.opts.OnOutcome(o)
	}
}
