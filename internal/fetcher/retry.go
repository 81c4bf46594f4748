package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the total attempt budget per source.
	DefaultMaxAttempts = 3
	// DefaultDelay is the fixed pause between attempts.
	DefaultDelay = 2 * time.Second
)

// FetchError records a source whose query exhausted its retry budget.
type FetchError struct {
	Source string
	Err    string
}

func (e *FetchError) Error() string {
	return e.Source + ": " + e.Err
}

// RetryPolicy bounds the attempts made for a single query.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Attempts returns the effective attempt budget after defaults apply.
func (p RetryPolicy) Attempts() int {
	return p.normalized().MaxAttempts
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = DefaultDelay
	}
	return p
}

// Query performs one upstream lookup. found=false with a nil error means the
// query succeeded but nothing matched.
type Query[T any] func(ctx context.Context) (value T, found bool, err error)

// WithRetry runs query until it succeeds or the attempt budget is spent, sleeping
// a fixed delay between attempts. Failures are returned as *FetchError.
func WithRetry[T any](ctx context.Context, source string, policy RetryPolicy, query Query[T], logger zerolog.Logger) (T, bool, error) {
	policy = policy.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		value, found, err := query(ctx)
		if err == nil {
			if !found {
				logger.Info().Str("source", source).Int("attempt", attempt).Msg("query returned no matching record")
				return zero, false, nil
			}
			return value, true, nil
		}

		lastErr = err
		logger.Warn().Err(err).
			Str("source", source).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Msg("query failed")

		if attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, false, &FetchError{Source: source, Err: ctx.Err().Error()}
		case <-timer.C:
		}
	}

	logger.Error().Str("source", source).Str("error", lastErr.Error()).Msg("retry budget exhausted")
	return zero, false, &FetchError{Source: source, Err: lastErr.Error()}
}
