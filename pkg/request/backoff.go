package request

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// ProviderBackoff spaces out requests to a provider that has been failing.
// Wikipedia and Wikidata throttle independently, so each provider keeps its own
// failure streak and earliest allowed time.
type ProviderBackoff struct {
	mu      sync.RWMutex
	streaks map[string]*streak
	base    time.Duration
	ceiling time.Duration
}

type streak struct {
	failures int
	until    time.Time
}

// NewProviderBackoff returns a backoff whose first delay is base and which never
// waits longer than ceiling plus jitter.
func NewProviderBackoff(base, ceiling time.Duration) *ProviderBackoff {
	return &ProviderBackoff{
		streaks: make(map[string]*streak),
		base:    base,
		ceiling: ceiling,
	}
}

// Wait returns once provider may be called again, or with ctx's error.
func (b *ProviderBackoff) Wait(ctx context.Context, provider string) error {
	_, until := b.State(provider)
	d := time.Until(until)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordFailure extends provider's streak and pushes its next slot out.
func (b *ProviderBackoff) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.streaks[provider]
	if s == nil {
		s = &streak{}
		b.streaks[provider] = s
	}
	s.failures++
	s.until = time.Now().Add(b.delay(s.failures))
}

// RecordSuccess shortens provider's streak by one. The wait is lifted only once
// the streak is gone, so a flapping provider stays throttled.
func (b *ProviderBackoff) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.streaks[provider]
	if s == nil {
		return
	}
	if s.failures > 0 {
		s.failures--
	}
	if s.failures == 0 {
		delete(b.streaks, provider)
	}
}

// delay doubles base for every failure after the first, caps it, and adds up
// to 10% jitter.
func (b *ProviderBackoff) delay(failures int) time.Duration {
	d := b.base
	for i := 1; i < failures && d < b.ceiling; i++ {
		d *= 2
	}
	if d > b.ceiling {
		d = b.ceiling
	}
	return d + time.Duration(rand.Float64()*0.1*float64(d))
}

// State reports provider's current failure streak and the earliest time it may
// be called. Unknown providers have no streak.
func (b *ProviderBackoff) State(provider string) (failures int, until time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if s := b.streaks[provider]; s != nil {
		return s.failures, s.until
	}
	return 0, time.Time{}
}
