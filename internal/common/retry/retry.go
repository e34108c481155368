// Package retry wraps directory calls with bounded retries: exponential
// backoff for throttled or transient API errors and a fixed-delay loop for
// the initial tenant connection.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const maxBackoff = 30 * time.Second

// Classifier reports whether err is transient and worth another attempt.
type Classifier func(error) bool

// Options configures Do.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Retryable overrides IsRetryableError. Errors marked Permanent are never retried.
	Retryable Classifier
	Logger    *slog.Logger
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not retryable regardless of the classifier.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryableError determines if an error is transient and worth retrying.
// Returns true for network timeouts, connection errors, throttling and temporary failures.
// Returns false for context cancellation and anything else.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"try again",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"too many requests",
		"service unavailable",
		"throttl",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// Do runs operation, retrying retryable failures with exponential backoff.
// The delay doubles on each attempt and is capped at 30 seconds.
// Context cancellation stops retries immediately.
//
//	err := retry.Do(ctx, retry.Options{MaxRetries: 3, BaseDelay: 2 * time.Second}, func() error {
//	    return provider.RevokeSessions(ctx, user)
//	})
func Do(ctx context.Context, opts Options, operation func() error) error {
	classify := opts.Retryable
	if classify == nil {
		classify = IsRetryableError
	}
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 && opts.Logger != nil {
				opts.Logger.Debug("Operation succeeded after retries", "retries", attempt)
			}
			return nil
		}

		var pe *permanentError
		if errors.As(lastErr, &pe) {
			return pe.err
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) || !classify(lastErr) {
			return lastErr
		}
		if attempt == opts.MaxRetries {
			if opts.MaxRetries == 0 {
				return lastErr
			}
			return fmt.Errorf("operation failed after %d retries: %w", opts.MaxRetries, lastErr)
		}

		delay := Backoff(opts.BaseDelay, attempt)
		if opts.Logger != nil {
			opts.Logger.Warn("Retryable error encountered",
				"attempt", attempt+1, "maxRetries", opts.MaxRetries, "delay", delay, "error", lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
	return lastErr
}

// Backoff returns baseDelay doubled attempt times, capped at 30 seconds.
func Backoff(baseDelay time.Duration, attempt int) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	if attempt > 20 {
		return maxBackoff
	}
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// Fixed calls operation up to attempts times, sleeping delay between failures.
// Every error is retried except Permanent ones and context cancellation.
// operation receives the 1-based attempt number.
func Fixed(ctx context.Context, attempts int, delay time.Duration, operation func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = operation(attempt)
		if lastErr == nil {
			return nil
		}
		var pe *permanentError
		if errors.As(lastErr, &pe) {
			return pe.err
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
