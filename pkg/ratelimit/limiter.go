package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a slot if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the initial state
	Reset()
}

// TokenBucket caps the request rate over all tRPC calls. It is a thin
// wrapper over x/time/rate so it can be reset and swapped for a Pacer.
type TokenBucket struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	lim   *rate.Limiter
}

// NewTokenBucket allows perMinute requests per minute with the given burst.
// A perMinute of zero or less disables the ceiling.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limit: limit,
		burst: burst,
		lim:   rate.NewLimiter(limit, burst),
	}
}

func (tb *TokenBucket) limiter() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lim
}

func (tb *TokenBucket) Allow() bool {
	return tb.limiter().Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter().Wait(ctx)
}

// Reset refills the bucket.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.lim = rate.NewLimiter(tb.limit, tb.burst)
}

// Pacer enforces a fixed delay between consecutive calls to Wait. The first
// call after construction or Reset returns immediately.
type Pacer struct {
	delay time.Duration

	mu      sync.Mutex
	started bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer with the given delay between calls.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay, sleep: sleepCtx}
}

// Delay returns the configured spacing.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Allow reports whether Wait would return without sleeping and marks the
// pacer as started.
func (p *Pacer) Allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	first := !p.started
	p.started = true
	return first || p.delay <= 0
}

// Wait sleeps for the configured delay unless this is the first call.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Allow() {
		return nil
	}
	return p.sleep(ctx, p.delay)
}

func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
