package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("circuit breaker is half-open and probing")
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Counts is a snapshot of the breaker's bookkeeping.
type Counts struct {
	State               State
	ConsecutiveFailures int
	HalfOpenSuccesses   int
	InFlightProbes      int
	LastFailure         time.Time
	OpenedAt            time.Time
}

type CircuitBreaker struct {
	name        string
	maxFailures int
	openTimeout time.Duration
	halfOpenMax int
	isFailure   func(err error) bool
	now         func() time.Time

	mu            sync.Mutex
	counts        Counts
	onStateChange func(name string, from, to State)

	// notifyMu serialises hook delivery so changes arrive in order.
	notifyMu sync.Mutex
	pending  []stateChange
}

type stateChange struct {
	from, to State
}

type CircuitBreakerConfig struct {
	Name        string
	MaxFailures int
	// Timeout is how long the breaker stays open before letting probes through.
	Timeout     time.Duration
	HalfOpenMax int
	// IsFailure decides whether an error counts against the backend. The
	// caller's own cancellation or deadline never does.
	IsFailure func(err error) bool
	// OnStateChange runs on the goroutine that caused the change, after the
	// breaker's lock is released.
	OnStateChange func(name string, from, to State)
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		openTimeout:   cfg.Timeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		now:           time.Now,
		onStateChange: cfg.OnStateChange,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn if the breaker admits it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error { return fn() })
}

// ExecuteContext runs fn if the breaker admits it and records the outcome.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, err := cb.admit()
	cb.notify()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.record(probe, err)
	cb.notify()
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.counts.State {
	case StateOpen:
		if cb.now().Sub(cb.counts.OpenedAt) < cb.openTimeout {
			return false, ErrCircuitOpen
		}
		cb.transitionTo(StateHalfOpen)
		fallthrough

	case StateHalfOpen:
		if cb.counts.InFlightProbes+cb.counts.HalfOpenSuccesses >= cb.halfOpenMax {
			return false, ErrTooManyRequests
		}
		cb.counts.InFlightProbes++
		return true, nil
	}

	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.counts.InFlightProbes--
	}

	failed := err != nil && !isContextError(err) && cb.isFailure(err)
	if !failed {
		if err != nil {
			return
		}
		switch cb.counts.State {
		case StateClosed:
			cb.counts.ConsecutiveFailures = 0
		case StateHalfOpen:
			if probe {
				cb.counts.HalfOpenSuccesses++
				if cb.counts.HalfOpenSuccesses >= cb.halfOpenMax {
					cb.transitionTo(StateClosed)
				}
			}
		}
		return
	}

	cb.counts.LastFailure = cb.now()

	switch cb.counts.State {
	case StateClosed:
		cb.counts.ConsecutiveFailures++
		if cb.counts.ConsecutiveFailures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.counts.State
	if oldState == newState {
		return
	}

	cb.counts.State = newState
	cb.counts.ConsecutiveFailures = 0
	cb.counts.HalfOpenSuccesses = 0
	if newState == StateOpen {
		cb.counts.OpenedAt = cb.now()
	}

	if cb.onStateChange != nil {
		cb.pending = append(cb.pending, stateChange{from: oldState, to: newState})
	}
}

// notify delivers queued state changes in the order they happened. It must
// be called without cb.mu held.
func (cb *CircuitBreaker) notify() {
	cb.notifyMu.Lock()
	defer cb.notifyMu.Unlock()

	cb.mu.Lock()
	changes := cb.pending
	cb.pending = nil
	cb.mu.Unlock()

	for _, c := range changes {
		cb.onStateChange(cb.name, c.from, c.to)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// State reports the current state. An open breaker whose timeout elapsed is
// reported as half-open only once a call has been admitted.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts.State
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.transitionTo(StateClosed)
	cb.counts = Counts{}
	cb.mu.Unlock()

	cb.notify()
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}
