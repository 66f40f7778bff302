// Package circuitbreaker wraps an operation with a closed/open/half-open
// state machine. It trips when a failure threshold is reached within a
// rolling time window and invokes a configured fallback while open.
package circuitbreaker

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Fallback is invoked instead of the wrapped operation while the circuit
// is open. It receives the error that would have caused the skip.
type Fallback func(ctx context.Context, cause error) error

// Options configures a Breaker.
type Options struct {
	// Threshold is the number of failures within Within before opening.
	Threshold int
	// Within is the rolling window over which Threshold is counted.
	Within time.Duration
	// ResetAfter is how long to stay open before allowing a half-open probe.
	ResetAfter time.Duration
	// SuccessThreshold is successes needed in half-open to close. Defaults to 1.
	SuccessThreshold int
	// MaxRequests caps concurrent probes allowed while half-open. Defaults to 1.
	MaxRequests int
	// OnStateChange is called (in a new goroutine) on every transition.
	OnStateChange func(name string, from, to State)
	// Fallback runs when the circuit is open or when the wrapped call fails.
	Fallback Fallback
}

// Breaker implements the circuit breaker pattern with windowed failure
// counting.
type Breaker struct {
	name    string
	options Options

	mu            sync.Mutex
	state         State
	failures      []time.Time
	successes     int
	openedAt      time.Time
	halfOpenCount int
}

// New creates a Breaker. Zero-valued fields in opts take sensible
// defaults: threshold 5, window 30s, reset-after 15s.
func New(name string, opts Options) *Breaker {
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.Within <= 0 {
		opts.Within = 30 * time.Second
	}
	if opts.ResetAfter <= 0 {
		opts.ResetAfter = 15 * time.Second
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = 1
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = 1
	}

	return &Breaker{
		name:    name,
		options: opts,
		state:   StateClosed,
	}
}

// Execute runs fn with circuit-breaker protection. If the circuit is open,
// or fn fails, the configured Fallback (if any) is invoked and its result
// returned; with no Fallback configured, the triggering error is returned
// directly.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeRequest(); err != nil {
		return b.runFallback(ctx, err)
	}

	err := fn(ctx)
	b.afterRequest(err == nil)

	if err != nil {
		return b.runFallback(ctx, err)
	}
	return nil
}

func (b *Breaker) runFallback(ctx context.Context, cause error) error {
	if b.options.Fallback != nil {
		return b.options.Fallback(ctx, cause)
	}
	return cause
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.openedAt) > b.options.ResetAfter {
			b.setState(StateHalfOpen)
			b.halfOpenCount = 1
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.halfOpenCount >= b.options.MaxRequests {
			return ErrTooManyRequests
		}
		b.halfOpenCount++
		return nil
	}

	return nil
}

func (b *Breaker) afterRequest(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = nil
			return
		}
		now := time.Now()
		b.failures = append(b.failures, now)
		b.trimWindow(now)
		if len(b.failures) >= b.options.Threshold {
			b.setState(StateOpen)
		}

	case StateHalfOpen:
		if success {
			b.successes++
			if b.successes >= b.options.SuccessThreshold {
				b.setState(StateClosed)
			}
		} else {
			b.setState(StateOpen)
		}
	}
}

// trimWindow drops failures older than the rolling window so Threshold is
// evaluated against "failures within Within", not total lifetime failures.
func (b *Breaker) trimWindow(now time.Time) {
	cutoff := now.Add(-b.options.Within)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	from := b.state
	b.state = state
	b.failures = nil
	b.successes = 0
	b.halfOpenCount = 0

	if state == StateOpen {
		b.openedAt = time.Now()
	}

	if b.options.OnStateChange != nil {
		go b.options.OnStateChange(b.name, from, state)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// Metrics reports current counters, useful for transport_circuit_stats.
type Metrics struct {
	State        State
	FailureCount int
	SuccessCount int
	OpenedAt     time.Time
}

// Metrics returns current counters.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		State:        b.state,
		FailureCount: len(b.failures),
		SuccessCount: b.successes,
		OpenedAt:     b.openedAt,
	}
}

// Reset forces the breaker back to closed and clears all counters, used by
// transport_circuit_stats reset operations.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = nil
	b.successes = 0
	b.halfOpenCount = 0
}
