package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mentorchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.FailureThreshold = 2
	cfg.OpenFor = time.Hour
	cb := NewCircuitBreaker(cfg, logger.Discard())
	ctx := context.Background()

	fail := errors.New("down")
	assert.ErrorIs(t, cb.Call(ctx, func(context.Context) error { return fail }), fail)
	assert.ErrorIs(t, cb.Call(ctx, func(context.Context) error { return fail }), fail)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 1
	cfg.OpenFor = time.Millisecond
	cb := NewCircuitBreaker(cfg, logger.Discard())
	ctx := context.Background()

	_ = cb.Call(ctx, func(context.Context) error { return errors.New("x") })
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCallTimeoutCountsAsFailure(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("slow")
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.FailureThreshold = 1
	cfg.OpenFor = time.Hour
	cb := NewCircuitBreaker(cfg, logger.Discard())

	err := cb.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCallerCancellationIsNotCounted(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("classifier")
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker(cfg, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenAdmitsLimitedProbes(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("probe")
	cfg.FailureThreshold = 1
	cfg.OpenFor = time.Millisecond
	cfg.MaxProbes = 1
	cb := NewCircuitBreaker(cfg, logger.Discard())
	ctx := context.Background()

	_ = cb.Call(ctx, func(context.Context) error { return errors.New("x") })
	time.Sleep(5 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, cb.Call(ctx, succeed), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
}

func TestStaleResultDoesNotMoveNewState(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("stale")
	cfg.FailureThreshold = 1
	cfg.OpenFor = time.Hour
	cb := NewCircuitBreaker(cfg, logger.Discard())
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cb.Call(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	_ = cb.Call(ctx, func(context.Context) error { return errors.New("x") })
	require.Equal(t, StateOpen, cb.State())

	close(release)
	<-done
	assert.Equal(t, StateOpen, cb.State())
}

func TestStateChangeHook(t *testing.T) {
	var mu sync.Mutex
	var seen []CircuitBreakerState

	cfg := DefaultCircuitBreakerConfig("hooked")
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 1
	cfg.OpenFor = time.Millisecond
	cfg.OnStateChange = func(name string, _, to CircuitBreakerState) {
		assert.Equal(t, "hooked", name)
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	}
	cb := NewCircuitBreaker(cfg, logger.Discard())
	ctx := context.Background()

	_ = cb.Call(ctx, func(context.Context) error { return errors.New("x") })
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Call(ctx, succeed))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []CircuitBreakerState{StateOpen, StateHalfOpen, StateClosed}, seen)
}
