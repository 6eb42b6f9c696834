package venue

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// limiter admits at most `capacity` concurrent requests and throttles
// overall throughput to a steady rate. Each concurrency slot is held for an
// extra `spacing` after its request completes, so one slot is not reused
// sooner than that; completions on different slots are not spaced apart from
// each other. It is the single authoritative gate shared by every caller of
// the venue client.
type limiter struct {
	sem     chan struct{}
	rate    *rate.Limiter
	spacing time.Duration
}

func newLimiter(requestsPerSecond int, spacing time.Duration) *limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &limiter{
		sem:     make(chan struct{}, requestsPerSecond),
		rate:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		spacing: spacing,
	}
}

// acquire blocks until a concurrency slot is free and the rate limiter
// admits the request, or the context is done.
func (l *limiter) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := l.rate.Wait(ctx); err != nil {
		<-l.sem
		return err
	}

	return nil
}

// release frees the concurrency slot, after an extra pause for the minimum
// spacing floor, so a burst of fast responses doesn't defeat the throttle.
func (l *limiter) release() {
	if l.spacing > 0 {
		time.Sleep(l.spacing)
	}
	<-l.sem
}
