package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"mentorchat/backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker short-circuits calls
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState string

const (
	// StateClosed lets every call through
	StateClosed CircuitBreakerState = "closed"
	// StateOpen rejects calls until the open period ends
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen lets a bounded number of probe calls through
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint
	// SuccessThreshold probe successes close it again.
	SuccessThreshold uint
	// CallTimeout bounds every call. Zero leaves the caller's deadline alone.
	CallTimeout time.Duration
	// OpenFor is how long the circuit stays open before probing.
	OpenFor time.Duration
	// MaxProbes caps concurrent calls while half-open.
	MaxProbes uint
	// IsFailure decides whether an error counts against the dependency.
	// Defaults to every error except the caller's own cancellation.
	IsFailure func(ctx context.Context, err error) bool
	// OnStateChange is called with the breaker lock released.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CallTimeout:      10 * time.Second,
		OpenFor:          60 * time.Second,
		MaxProbes:        1,
	}
}

// CallerCanceled reports whether err is the caller giving up rather than
// the dependency failing: the parent context was canceled before any
// deadline of the breaker's own fired.
func CallerCanceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && ctx.Err() != nil
}

func defaultIsFailure(ctx context.Context, err error) bool {
	return !CallerCanceled(ctx, err)
}

// CircuitBreaker guards calls to a remote dependency. Results are counted
// per generation: a call that started before the last state change does
// not move the new state.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	log *logger.Logger

	mu         sync.Mutex
	state      CircuitBreakerState
	generation uint64
	failures   uint
	successes  uint
	probes     uint
	openUntil  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.MaxProbes == 0 {
		cfg.MaxProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log,
		state: StateClosed,
	}
}

// Call runs fn under the breaker with the call timeout applied to ctx. A
// timeout counts as a failure; the caller's own cancellation does not.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	gen, err := cb.admit()
	if err != nil {
		cb.log.Debug("call short-circuited", "breaker", cb.cfg.Name)
		return err
	}

	callCtx := ctx
	if cb.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	err = fn(callCtx)
	failed := err != nil && cb.cfg.IsFailure(ctx, err)
	if failed {
		cb.log.Warn("dependency call failed",
			"breaker", cb.cfg.Name,
			"error", err.Error(),
			"duration", time.Since(start).String(),
		)
	}
	cb.settle(gen, err != nil, failed)
	return err
}

// State returns the current state, moving an expired open circuit to
// half-open first.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	from, to := cb.refresh(time.Now())
	state := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return state
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	from, to := cb.refresh(time.Now())

	var err error
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.MaxProbes {
			err = ErrCircuitOpen
		} else {
			cb.probes++
		}
	}
	gen := cb.generation
	cb.mu.Unlock()

	cb.notify(from, to)
	return gen, err
}

// settle records the result of a call admitted in generation gen. errored
// without failed is a caller-side error: it releases a probe slot and
// leaves the counters alone.
func (cb *CircuitBreaker) settle(gen uint64, errored, failed bool) {
	cb.mu.Lock()
	if gen != cb.generation {
		cb.mu.Unlock()
		return
	}

	var from, to CircuitBreakerState
	switch cb.state {
	case StateClosed:
		switch {
		case failed:
			cb.failures++
			if cb.failures >= cb.cfg.FailureThreshold {
				from, to = cb.shift(StateOpen, time.Now())
			}
		case !errored:
			cb.failures = 0
		}
	case StateHalfOpen:
		cb.probes--
		switch {
		case failed:
			from, to = cb.shift(StateOpen, time.Now())
		case !errored:
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				from, to = cb.shift(StateClosed, time.Now())
			}
		}
	}
	cb.mu.Unlock()

	cb.notify(from, to)
}

// refresh must be called with mu held.
func (cb *CircuitBreaker) refresh(now time.Time) (CircuitBreakerState, CircuitBreakerState) {
	if cb.state == StateOpen && !now.Before(cb.openUntil) {
		return cb.shift(StateHalfOpen, now)
	}
	return "", ""
}

// shift must be called with mu held. It starts a new generation.
func (cb *CircuitBreaker) shift(to CircuitBreakerState, now time.Time) (CircuitBreakerState, CircuitBreakerState) {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0
	if to == StateOpen {
		cb.openUntil = now.Add(cb.cfg.OpenFor)
	}
	return from, to
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if to == "" {
		return
	}
	cb.log.Info("circuit state changed", "breaker", cb.cfg.Name, "from", string(from), "to", string(to))
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
