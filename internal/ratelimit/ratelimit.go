// Package ratelimit implements fixed-window request counters.
//
// Windows are anchored at the first hit for a key and reset wall-clock relative, so
// a burst straddling a window boundary can admit up to twice the limit.
package ratelimit

import (
	"context"
	"time"
)

// Policy is a named limit: at most Max hits per Window for each key.
type Policy struct {
	Name   string
	Max    int
	Window time.Duration
}

// Decision is the outcome of one hit.
type Decision struct {
	Allowed    bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits per policy and key. A rejected hit does not advance the counter.
type Limiter interface {
	Allow(ctx context.Context, policy Policy, key string) (Decision, error)
}

func decide(policy Policy, count int, allowed bool, resetIn time.Duration) Decision {
	remaining := policy.Max - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: allowed, Count: count, Remaining: remaining}
	if !allowed {
		d.RetryAfter = resetIn
	}
	return d
}
