// Package backoff schedules broker reconnect attempts.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/architeacher/go-blazingmq/internal/config"
)

// Unlimited is the attempt budget of a schedule that never gives up.
const Unlimited = -1

type (
	// Strategy yields the wait before a reconnect attempt, given how many attempts
	// already failed in a row.
	Strategy interface {
		Backoff(retries int) time.Duration
	}

	// Exponential grows the delay by a constant factor per failed attempt, caps it
	// at a maximum and spreads it by a symmetric jitter.
	Exponential struct {
		base     float64
		ceiling  float64
		factor   float64
		jitter   float64
		attempts int
	}
)

func NewExponentialStrategy(cfg config.BackoffConfig) Exponential {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = Unlimited
	}

	return Exponential{
		base:     float64(cfg.BaseDelay),
		ceiling:  float64(max(cfg.MaxDelay, cfg.BaseDelay)),
		factor:   max(cfg.Multiplier, 1),
		jitter:   min(max(cfg.Jitter, 0), 1),
		attempts: attempts,
	}
}

func (e Exponential) Backoff(retries int) time.Duration {
	delay := e.base
	if retries > 0 {
		delay = min(e.base*math.Pow(e.factor, float64(retries)), e.ceiling)
	}

	if e.jitter > 0 {
		delay += delay * e.jitter * (2*rand.Float64() - 1)
	}

	return time.Duration(max(delay, 0))
}

// Attempts is the reconnect budget, or Unlimited.
func (e Exponential) Attempts() int {
	return e.attempts
}

// Exhausted reports whether attempt, counted from zero, is past the budget.
func (e Exponential) Exhausted(attempt int) bool {
	return e.attempts != Unlimited && attempt >= e.attempts
}

// Wait sleeps for the delay of the given attempt. It returns false if ctx ends first.
func Wait(ctx context.Context, s Strategy, retries int) bool {
	timer := time.NewTimer(s.Backoff(retries))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
