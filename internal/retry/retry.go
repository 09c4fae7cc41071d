// Package retry applies an explicit exponential-backoff policy to calls
// against external collaborators.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"transcript-insights-go/internal/logger"
)

// ErrExternalCall marks an external call that failed after every attempt.
var ErrExternalCall = errors.New("external call failed")

// ExternalCallError carries the operation name and attempt count.
type ExternalCallError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *ExternalCallError) Unwrap() []error { return []error{ErrExternalCall, e.Err} }

// Permanent wraps err so the policy stops retrying immediately.
func Permanent(err error) error { return backoff.Permanent(err) }

// Policy is a retry policy parameterized by attempts, delays and jitter.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"`

	// OnRetry, when set, observes every failed attempt that will be retried.
	OnRetry func(op string, err error, wait time.Duration) `yaml:"-"`
}

// DefaultPolicy is three attempts starting at one second with 20% jitter.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Jitter: 0.2}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = d.Jitter
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Do runs fn until it succeeds, returns a permanent error, the context ends
// or every attempt is spent. Exhaustion yields an *ExternalCallError.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	log := logger.Component("retry").WithField("op", op)
	err := backoff.RetryNotify(func() error {
		attempts++
		return fn(ctx)
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.WithField("attempt", attempts).WithField("wait", wait.String()).WithField("error", err.Error()).Warn("external call failed, retrying")
		if p.OnRetry != nil {
			p.OnRetry(op, err, wait)
		}
	})
	if err == nil {
		return nil
	}
	return &ExternalCallError{Op: op, Attempts: attempts, Err: err}
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
