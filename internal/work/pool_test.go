package work

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T, registry *Registry, cfg PoolConfig) *Pool {
	t.Helper()
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	p := NewPool(registry, cfg, zerolog.Nop())
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEnqueueUnknownJobType(t *testing.T) {
	p := testPool(t, NewRegistry(), PoolConfig{Workers: 1})
	assert.False(t, p.Enqueue("no_such_job", nil))
}

func TestPoolRunsJob(t *testing.T) {
	registry := NewRegistry()
	var runs atomic.Int32
	registry.Register(&JobType{
		Name: "ok_job",
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			runs.Add(1)
			return Counts{"done": 1}, nil
		},
	})

	p := testPool(t, registry, PoolConfig{Workers: 2})
	require.True(t, p.Enqueue("ok_job", nil))

	waitFor(t, 2*time.Second, func() bool { return runs.Load() == 1 })

	res, ok := p.LastResult("ok_job")
	require.True(t, ok)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Counts["done"])
	assert.Equal(t, 1, res.Attempt)
}

func TestPoolRetriesTransientFailures(t *testing.T) {
	registry := NewRegistry()
	var attempts atomic.Int32
	registry.Register(&JobType{
		Name: "flaky_job",
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			if attempts.Add(1) < 3 {
				return nil, Retryable(errors.New("transient"))
			}
			return Counts{"done": 1}, nil
		},
	})

	p := testPool(t, registry, PoolConfig{Workers: 1, MaxRetries: 3})
	require.True(t, p.Enqueue("flaky_job", nil))

	waitFor(t, 2*time.Second, func() bool { return attempts.Load() == 3 })

	waitFor(t, 2*time.Second, func() bool {
		res, ok := p.LastResult("flaky_job")
		return ok && res.Err == nil
	})
	res, _ := p.LastResult("flaky_job")
	assert.Equal(t, 3, res.Attempt)
}

func TestPoolRetryBudgetIsBounded(t *testing.T) {
	registry := NewRegistry()
	var attempts atomic.Int32
	registry.Register(&JobType{
		Name: "doomed_job",
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			attempts.Add(1)
			return nil, Retryable(errors.New("still down"))
		},
	})

	p := testPool(t, registry, PoolConfig{Workers: 1, MaxRetries: 2})
	require.True(t, p.Enqueue("doomed_job", nil))

	// MaxRetries retries after the first attempt, then the run is
	// abandoned.
	waitFor(t, 2*time.Second, func() bool { return attempts.Load() == 3 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestPoolDoesNotRetryPermanentFailures(t *testing.T) {
	registry := NewRegistry()
	var attempts atomic.Int32
	registry.Register(&JobType{
		Name: "bad_job",
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			attempts.Add(1)
			return nil, Permanent(errors.New("bad input"))
		},
	})

	p := testPool(t, registry, PoolConfig{Workers: 1, MaxRetries: 3})
	require.True(t, p.Enqueue("bad_job", nil))

	waitFor(t, 2*time.Second, func() bool { return attempts.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestPoolDoesNotRetryUnclassifiedFailures(t *testing.T) {
	registry := NewRegistry()
	var attempts atomic.Int32
	registry.Register(&JobType{
		Name: "odd_job",
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			attempts.Add(1)
			return nil, errors.New("unclassified")
		},
	})

	p := testPool(t, registry, PoolConfig{Workers: 1, MaxRetries: 3})
	require.True(t, p.Enqueue("odd_job", nil))

	waitFor(t, 2*time.Second, func() bool { return attempts.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestPoolHonorsJobTimeout(t *testing.T) {
	registry := NewRegistry()
	var sawDeadline atomic.Bool
	registry.Register(&JobType{
		Name:    "slow_job",
		Timeout: 20 * time.Millisecond,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			<-ctx.Done()
			sawDeadline.Store(true)
			return nil, ctx.Err()
		},
	})

	p := testPool(t, registry, PoolConfig{Workers: 1})
	require.True(t, p.Enqueue("slow_job", nil))

	waitFor(t, 2*time.Second, func() bool { return sawDeadline.Load() })
}

func TestPoolDefersNonReentrantOverlap(t *testing.T) {
	registry := NewRegistry()
	release := make(chan struct{})
	var runs atomic.Int32
	registry.Register(&JobType{
		Name:         "exclusive_job",
		NonReentrant: true,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			runs.Add(1)
			<-release
			return Counts{}, nil
		},
	})

	p := testPool(t, registry, PoolConfig{Workers: 2})
	require.True(t, p.Enqueue("exclusive_job", nil))
	require.True(t, p.Enqueue("exclusive_job", nil))

	// Only one instance runs while the first holds the slot.
	waitFor(t, 2*time.Second, func() bool { return runs.Load() == 1 })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	// Releasing the first lets the deferred item run, with its attempt
	// budget intact.
	close(release)
	waitFor(t, 5*time.Second, func() bool { return runs.Load() == 2 })

	res, ok := p.LastResult("exclusive_job")
	require.True(t, ok)
	assert.Equal(t, 1, res.Attempt)
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	p := NewPool(NewRegistry(), PoolConfig{Backoff: time.Minute}, zerolog.Nop())

	assert.Equal(t, time.Minute, p.backoffDelay(1))
	assert.Equal(t, 2*time.Minute, p.backoffDelay(2))
	assert.Equal(t, 4*time.Minute, p.backoffDelay(3))
	assert.Equal(t, maxBackoff, p.backoffDelay(20))
}
