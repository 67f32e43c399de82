// Package retry provides bounded retry with exponential backoff for
// operations that suspend on I/O, such as LLM calls.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/DrayChou/personal-ai-assistant/internal/backoff"
)

// Config configures a retry loop.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
}

// DefaultConfig matches the Supervisor Agent's default LLM-call retry
// policy from spec.md §4.5: 3 attempts, 1s base delay.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Result describes how a retried operation concluded.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error { return &PermanentError{Err: err} }

func isPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Do runs op, retrying on error up to cfg.MaxAttempts times with
// exponential backoff between attempts. It stops early if ctx is
// cancelled or op returns a Permanent error.
func Do(ctx context.Context, cfg Config, op func(attempt int) error) Result {
	start := time.Now()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Factor <= 0 {
		cfg.Factor = 2.0
	}

	jitter := 0.0
	if cfg.Jitter {
		jitter = 1.0
	}
	policy := backoff.Policy{
		InitialMs: float64(cfg.InitialDelay.Milliseconds()),
		MaxMs:     float64(cfg.MaxDelay.Milliseconds()),
		Factor:    cfg.Factor,
		Jitter:    jitter,
	}

	res := Result{}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			res.Err = err
			res.Duration = time.Since(start)
			return res
		}

		err := op(attempt)
		if err == nil {
			res.Err = nil
			res.Duration = time.Since(start)
			return res
		}
		res.Err = err
		if isPermanent(err) {
			res.Duration = time.Since(start)
			return res
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		case <-time.After(backoff.Compute(policy, attempt)):
		}
	}
	res.Duration = time.Since(start)
	return res
}
