package retry

import (
	"context"
	"fmt"
	"time"
)

type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// Policy bounds how often and how slowly an operation is retried.
// MaxRetries counts retries, so an operation runs at most MaxRetries+1 times.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	MaxDelay   time.Duration
	Backoff    Backoff
}

// DelayFor returns the wait before the n-th retry (n starts at 1).
func (p Policy) DelayFor(n int) time.Duration {
	if n < 1 || p.Delay <= 0 {
		return 0
	}
	d := p.Delay
	if p.Backoff == BackoffExponential {
		for i := 1; i < n; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Clock is the timer source. Tests swap it for one that fires at once.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock uses the wall clock.
var RealClock Clock = realClock{}

type State int

const (
	StateReady State = iota
	StateAttempting
	StateWaiting
	StateSucceeded
	StateAborted
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAttempting:
		return "attempting"
	case StateWaiting:
		return "waiting"
	case StateSucceeded:
		return "succeeded"
	case StateAborted:
		return "aborted"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result describes how a retried operation ended.
type Result struct {
	State    State
	Attempts int
	Err      error
}

// Retrier drives an operation through attempt and wait states. The only
// suspension points are the operation itself and the backoff timer.
type Retrier struct {
	policy    Policy
	clock     Clock
	retryable func(error) bool
	onRetry   func(attempt int, delay time.Duration, err error)
}

type Option func(*Retrier)

// WithClock replaces the timer source.
func WithClock(c Clock) Option {
	return func(r *Retrier) { r.clock = c }
}

// OnRetry registers a hook called before each wait.
func OnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New builds a Retrier. retryable decides whether a failure earns another
// attempt; anything else aborts at once.
func New(policy Policy, retryable func(error) bool, opts ...Option) *Retrier {
	r := &Retrier{
		policy:    policy,
		clock:     RealClock,
		retryable: retryable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// retry budget is spent or ctx ends while waiting.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) Result {
	res := Result{State: StateReady}
	var wait <-chan time.Time

	for {
		switch res.State {
		case StateReady, StateAttempting:
			res.State = StateAttempting
			res.Attempts++
			res.Err = op(ctx)

			switch {
			case res.Err == nil:
				res.State = StateSucceeded
			case !r.retryable(res.Err):
				res.State = StateAborted
			case res.Attempts > r.policy.MaxRetries:
				res.State = StateExhausted
			default:
				delay := r.policy.DelayFor(res.Attempts)
				if r.onRetry != nil {
					r.onRetry(res.Attempts, delay, res.Err)
				}
				wait = r.clock.After(delay)
				res.State = StateWaiting
			}

		case StateWaiting:
			select {
			case <-ctx.Done():
				res.State = StateAborted
				res.Err = ctx.Err()
			case <-wait:
				res.State = StateAttempting
			}

		default:
			return res
		}
	}
}
