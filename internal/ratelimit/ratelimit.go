package ratelimit

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Feedback lets a limiter slow down after failed page loads.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

// JitterLimiter spaces actions by a random delay in [minDelay, maxDelay].
type JitterLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &JitterLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (r *JitterLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAction.IsZero() {
		elapsed := time.Since(r.lastAction)
		delay := r.calculateDelay()

		if elapsed < delay {
			timer := time.NewTimer(delay - elapsed)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *JitterLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *JitterLimiter) calculateDelay() time.Duration {
	if r.minDelay >= r.maxDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// AdaptiveLimiter widens its delay window after repeated errors and narrows
// it again after a run of successes.
type AdaptiveLimiter struct {
	*JitterLimiter
	floor         time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveLimiter(minDelay, maxDelay time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		JitterLimiter: NewJitterLimiter(minDelay, maxDelay),
		floor:         minDelay,
		maxErrorCount: 3,
		backoffFactor: 1.5,
	}
}

func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		if a.maxDelay < a.minDelay {
			a.maxDelay = a.minDelay
		}
		a.successCount = 0
	}
}

func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > 60*time.Second {
			newMin = 60 * time.Second
		}
		if newMax > 120*time.Second {
			newMax = 120 * time.Second
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

// TokenBucket allows bursts of up to burst actions refilled every interval.
type TokenBucket struct {
	limiter *rate.Limiter
}

func NewTokenBucket(burst int, interval time.Duration) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Chain waits on each limiter in order and forwards feedback to those that
// accept it.
type Chain []RateLimiter

func (c Chain) Wait(ctx context.Context) error {
	for _, l := range c {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) RecordSuccess() {
	for _, l := range c {
		if fb, ok := l.(Feedback); ok {
			fb.RecordSuccess()
		}
	}
}

func (c Chain) RecordError() {
	for _, l := range c {
		if fb, ok := l.(Feedback); ok {
			fb.RecordError()
		}
	}
}

// PerSite hands out one limiter per site id, created on first use.
type PerSite struct {
	newLimiter func() RateLimiter
	limiters   map[string]RateLimiter
	mu         sync.Mutex
}

func NewPerSite(newLimiter func() RateLimiter) *PerSite {
	return &PerSite{
		newLimiter: newLimiter,
		limiters:   make(map[string]RateLimiter),
	}
}

func (p *PerSite) For(siteID string) RateLimiter {
	key := strings.ToLower(siteID)

	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[key]
	if !ok {
		limiter = p.newLimiter()
		p.limiters[key] = limiter
	}
	return limiter
}

func (p *PerSite) Wait(ctx context.Context, siteID string) error {
	return p.For(siteID).Wait(ctx)
}
