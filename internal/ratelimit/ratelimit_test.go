package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FirstCallImmediate(t *testing.T) {
	l := New(time.Hour)
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

// permitStarts acquires calls times and returns the recorded start of each
// permitted call.
func permitStarts(t *testing.T, l *Limiter, calls int) []time.Time {
	t.Helper()
	var starts []time.Time
	for i := 0; i < calls; i++ {
		require.NoError(t, l.Acquire(context.Background()))
		starts = append(starts, l.last)
	}
	return starts
}

func TestLimiter_EnforcesMinInterval(t *testing.T) {
	const interval = 40 * time.Millisecond
	l := New(interval)

	starts := permitStarts(t, l, 4)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, interval, "gap %d was %s", i, gap)
	}
	assert.GreaterOrEqual(t, starts[3].Sub(starts[0]), 3*interval)
}

func TestLimiter_NoShortGapsUnderLoad(t *testing.T) {
	for _, interval := range []time.Duration{3330 * time.Microsecond, 7 * time.Millisecond, 13 * time.Millisecond} {
		t.Run(interval.String(), func(t *testing.T) {
			l := New(interval)
			starts := permitStarts(t, l, 40)
			for i := 1; i < len(starts); i++ {
				assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), interval, "call %d", i)
			}
		})
	}
}

func TestLimiter_CancelledBeforePermit(t *testing.T) {
	l := New(50 * time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratelimit: acquire")
}

func TestLimiter_ConcurrentCallersShareInterval(t *testing.T) {
	const interval = 30 * time.Millisecond
	l := New(interval)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(ctx))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 3*interval)
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := New(time.Hour)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratelimit: acquire")
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(0)
	assert.Zero(t, l.MinInterval())

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(map[string]time.Duration{"google": 5 * time.Millisecond})

	assert.Same(t, r.For("nominatim"), r.For("nominatim"))
	assert.Equal(t, time.Second, r.For("nominatim").MinInterval())
	assert.Equal(t, 5*time.Millisecond, r.For("google").MinInterval())
	assert.Equal(t, 20*time.Millisecond, r.For("census").MinInterval())
	assert.Equal(t, time.Second, r.For("unknown").MinInterval())
}
