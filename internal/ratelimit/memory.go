package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps counters in process.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter creates an empty limiter. now may be nil.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{windows: make(map[string]*window), now: now}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, policy Policy, key string) (Decision, error) {
	now := l.now()
	id := policy.Name + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[id]
	if !ok || now.Sub(w.start) >= policy.Window {
		w = &window{start: now}
		l.windows[id] = w
	}
	resetIn := policy.Window - now.Sub(w.start)
	if w.count >= policy.Max {
		return decide(policy, w.count, false, resetIn), nil
	}
	w.count++
	return decide(policy, w.count, true, resetIn), nil
}

// Sweep drops windows that started more than maxWindow before now.
func (l *MemoryLimiter) Sweep(now time.Time, maxWindow time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, w := range l.windows {
		if now.Sub(w.start) >= maxWindow {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (l *MemoryLimiter) RunJanitor(ctx context.Context, interval, maxWindow time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep(l.now(), maxWindow)
		case <-ctx.Done():
			return
		}
	}
}
