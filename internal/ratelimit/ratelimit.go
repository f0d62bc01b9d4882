// Package ratelimit enforces a minimum interval between outbound requests to
// each geocoding provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiter blocks callers so that permitted calls start at least MinInterval
// apart. A burst-1 token bucket paces callers. The bucket can hand out an
// early permit after a late wakeup, so the start of the previous permit is
// also tracked and any remainder waited out.
type Limiter struct {
	minInterval time.Duration
	limiter     *rate.Limiter

	mu   sync.Mutex
	last time.Time
}

// New creates a Limiter. A non-positive interval disables limiting.
func New(minInterval time.Duration) *Limiter {
	if minInterval <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{
		minInterval: minInterval,
		limiter:     rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Acquire blocks until the next call is permitted or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "ratelimit: acquire")
	}
	if l.minInterval <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.last.IsZero() {
		if wait := l.minInterval - time.Since(l.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "ratelimit: acquire")
			case <-timer.C:
			}
		}
	}
	l.last = time.Now()
	return nil
}

// MinInterval returns the configured interval (zero when unlimited).
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Default intervals respect each provider's published usage policy.
var defaultIntervals = map[string]time.Duration{
	"nominatim": time.Second, // OSM policy: absolute maximum of 1 request per second
	"google":    50 * time.Millisecond,
	"census":    20 * time.Millisecond,
}

// Registry hands out one shared Limiter per provider. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.Mutex
	limiters  map[string]*Limiter
	overrides map[string]time.Duration
}

// NewRegistry creates a Registry. overrides replace the default interval for
// the named providers.
func NewRegistry(overrides map[string]time.Duration) *Registry {
	o := make(map[string]time.Duration, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}
	return &Registry{
		limiters:  make(map[string]*Limiter),
		overrides: o,
	}
}

// For returns the limiter for provider, creating it on first use. Unknown
// providers default to one request per second.
func (r *Registry) For(provider string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[provider]; ok {
		return l
	}

	interval, ok := r.overrides[provider]
	if !ok {
		interval, ok = defaultIntervals[provider]
	}
	if !ok {
		interval = time.Second
	}
	l := New(interval)
	r.limiters[provider] = l
	return l
}
