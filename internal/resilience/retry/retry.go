// Package retry executes call attempts under a bounded, deadline-aware
// backoff policy. Delays grow exponentially from the base with random jitter
// of up to one base unit, capped at the ceiling. A permanent classification
// aborts immediately, and no attempt is scheduled past the caller's deadline.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/classify"
)

// Config is the retry policy for one guarded service.
type Config struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// Base is the delay before the first retry; retry n waits base*2^n.
	Base time.Duration

	// Ceiling caps any single delay.
	Ceiling time.Duration

	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
}

// FromDescriptor builds the retry policy a descriptor specifies.
func FromDescriptor(d resilience.Descriptor) Config {
	return Config{
		MaxRetries:     d.MaxRetries,
		Base:           d.BackoffBase,
		Ceiling:        d.BackoffCeiling,
		AttemptTimeout: d.Timeout,
	}
}

// Delay returns the backoff before retry n (zero-based): base*2^n plus
// jitter of up to one base unit, capped at the ceiling.
func (c Config) Delay(n int) time.Duration {
	d := c.Base << uint(n)
	if d > c.Ceiling || d <= 0 {
		d = c.Ceiling
	}
	// #nosec G404 -- jitter does not need cryptographic randomness.
	jitter := time.Duration(rand.Int63n(int64(c.Base) + 1))
	if d+jitter > c.Ceiling {
		return c.Ceiling
	}
	return d + jitter
}

// Do runs fn under the policy and returns the outcome of the final attempt.
// Each attempt gets its own timeout derived from ctx; once ctx's deadline is
// reached the in-flight attempt is abandoned, classified as a timeout, and no
// further attempt is scheduled. Total wall-clock never exceeds the caller's
// deadline plus one in-flight attempt.
func Do(ctx context.Context, cfg Config, classifier classify.Classifier, fn func(context.Context) error) resilience.CallOutcome {
	var outcome resilience.CallOutcome

	for attempt := 0; ; attempt++ {
		outcome = run(ctx, cfg.AttemptTimeout, classifier, fn)

		if outcome.Class == resilience.ClassSuccess {
			if attempt > 0 {
				slog.Debug("call succeeded after retry", slog.Int("attempt", attempt+1))
			}
			return outcome
		}

		if outcome.Class == resilience.ClassPermanent {
			// Never retried; the breaker counts it immediately.
			return outcome
		}

		if attempt >= cfg.MaxRetries {
			return outcome
		}

		if ctx.Err() != nil {
			// The caller's deadline, not the attempt's, has passed.
			outcome.Class = resilience.ClassTimeout
			return outcome
		}

		delay := cfg.Delay(attempt)
		if deadline, ok := ctx.Deadline(); ok {
			// Stop early when the remaining budget cannot fit the wait plus
			// an attempt of the latency just observed.
			if time.Until(deadline) < delay+outcome.Latency {
				return outcome
			}
		}

		slog.Debug("call failed, backing off",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", cfg.MaxRetries),
			slog.Duration("delay", delay),
			slog.String("class", outcome.Class.String()),
			slog.Any("error", outcome.Err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			outcome.Class = resilience.ClassTimeout
			return outcome
		}
	}
}

// run executes a single attempt under its own timeout and classifies it.
func run(ctx context.Context, timeout time.Duration, classifier classify.Classifier, fn func(context.Context) error) resilience.CallOutcome {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(attemptCtx)
	latency := time.Since(start)

	class := classifier.Classify(err)
	if err != nil && attemptCtx.Err() != nil {
		// The attempt ran out of budget regardless of what the dependency
		// reported on the way down.
		class = resilience.ClassTimeout
	}

	return resilience.CallOutcome{Class: class, Latency: latency, Err: err}
}
