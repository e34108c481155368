// Package ratelimit paces directory API calls with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket with a burst of one. A zero or negative rate
// disables limiting.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
}

// New returns a limiter allowing rps requests per second.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
	}
}

// Enabled reports whether the limiter restricts anything.
func (l *Limiter) Enabled() bool { return l != nil && l.limiter != nil }

// RPS returns the configured rate, or 0 when disabled.
func (l *Limiter) RPS() float64 {
	if !l.Enabled() {
		return 0
	}
	return l.rps
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// String describes the rate for logs.
func (l *Limiter) String() string {
	if !l.Enabled() {
		return "disabled"
	}
	if l.rps < 1 {
		return fmt.Sprintf("1 request per %v", time.Duration(float64(time.Second)/l.rps).Round(time.Millisecond))
	}
	return fmt.Sprintf("%.2f rps", l.rps)
}
