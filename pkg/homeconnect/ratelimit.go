package homeconnect

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Outbound pacing applied to every call in addition to server-signalled
// retry-after delays. The Home Connect API enforces per-client quotas; ten
// requests per second keeps well inside them.
const (
	paceRate  = rate.Limit(10)
	paceBurst = 10
)

// rateLimiter gates every outbound request. It combines a token-bucket
// pacer with a process-wide earliest-retry timestamp that the server moves
// forward whenever it signals throttling (HTTP 429 or a refresh rate
// limit). The timestamp is monotonically non-decreasing.
type rateLimiter struct {
	pacer *rate.Limiter

	mu            sync.Mutex
	earliestRetry time.Time
	now           func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		pacer: rate.NewLimiter(paceRate, paceBurst),
		now:   time.Now,
	}
}

// Delay moves the earliest-retry timestamp at least d into the future.
// A shorter delay than the one already pending is ignored.
func (l *rateLimiter) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	at := l.now().Add(d)
	if at.After(l.earliestRetry) {
		l.earliestRetry = at
	}
}

// Wait blocks until both the earliest-retry timestamp has passed and the
// pacer admits another request, or the context is cancelled.
func (l *rateLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		wait := l.earliestRetry.Sub(l.now())
		l.mu.Unlock()
		if wait <= 0 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		// Re-check: another call may have pushed the horizon further out.
	}
	return l.pacer.Wait(ctx)
}
