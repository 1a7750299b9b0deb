// Package ratelimit implements the shared per-minute token bucket (spec
// §5, §9 "Rate limiter"): a single limiter shared across all in-flight
// sessions, safe for concurrent use.
//
// Grounded on golang.org/x/time/rate usage found in the pack's
// BaSui01-agentflow/cmd/agentflow/middleware.go
// (rate.NewLimiter(rate.Limit(rps), burst)).
package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when an immediate attempt would exceed the
// configured per-minute capacity (spec §7 "Rate limit exceeded -> raised
// to caller immediately").
var ErrRateLimited = errors.New("ratelimit: per-minute capacity exceeded")

// Limiter wraps golang.org/x/time/rate with a per-minute capacity API,
// since policy configuration is expressed as rate_limit_per_min rather
// than a per-second rate.
type Limiter struct {
	limiter *rate.Limiter
}

// New constructs a Limiter allowing perMinute attempts per minute, with a
// burst equal to perMinute (a full minute's budget can be spent at once,
// matching a simple token-bucket's natural burst capacity).
func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	perSecond := rate.Limit(float64(perMinute) / 60.0)
	return &Limiter{limiter: rate.NewLimiter(perSecond, perMinute)}
}

// Allow reports whether an attempt may proceed right now without
// consuming future budget if it would not be allowed.
func (l *Limiter) Allow() (bool, error) {
	if l.limiter.Allow() {
		return true, nil
	}
	return false, ErrRateLimited
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Reserve mirrors rate.Limiter.Reserve for callers that want to inspect
// the delay before committing to it.
func (l *Limiter) Reserve() time.Duration {
	r := l.limiter.Reserve()
	if !r.OK() {
		return 0
	}
	return r.Delay()
}
