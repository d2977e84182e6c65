// Package retry runs an operation under a bounded exponential backoff
// schedule with a per-error classifier.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default schedule: 3 attempts, 1s initial delay doubling up to 10s.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 10 * time.Second
	DefaultMultiplier      = 2.0
)

// Decision tells Do how to treat a failed attempt.
type Decision int

const (
	// Retry schedules another attempt after the next backoff delay.
	Retry Decision = iota
	// Refresh schedules another attempt and signals that cached
	// credentials (such as a signed URL) must be re-acquired first.
	Refresh
	// Abort stops immediately and returns the error.
	Abort
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Refresh:
		return "refresh"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Event describes a failed attempt that will be retried.
type Event struct {
	Attempt  int // 1-based attempt that failed
	Err      error
	Decision Decision
	Delay    time.Duration
}

// Policy configures Do. Zero fields take the package defaults.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Classify maps an attempt error to a Decision. Nil retries everything.
	Classify func(error) Decision

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(Event)
}

// DefaultPolicy returns the default schedule with no classifier.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialInterval < 0 {
		p.InitialInterval = 0
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	return p
}

// Schedule returns the delays Do would sleep between attempts.
func (p Policy) Schedule() []time.Duration {
	p = p.normalized()
	b := p.newBackOff()
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for range p.MaxAttempts - 1 {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

func (p Policy) newBackOff() backoff.BackOff {
	if p.InitialInterval == 0 {
		return &backoff.ZeroBackOff{}
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// Do runs op until it succeeds, the classifier aborts, the context ends,
// or MaxAttempts attempts have failed. It returns the last attempt error.
// The attempt number passed to op is 1-based.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	p = p.normalized()

	var (
		attempt int
		lastErr error
	)
	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if p.decide(err) == Abort {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(Event{Attempt: attempt, Err: err, Decision: p.decide(err), Delay: delay})
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}
	if lastErr != nil && !errors.Is(err, lastErr) {
		// Context ended between attempts.
		return errors.Join(lastErr, err)
	}
	return err
}

func (p Policy) decide(err error) Decision {
	if p.Classify == nil {
		return Retry
	}
	return p.Classify(err)
}
