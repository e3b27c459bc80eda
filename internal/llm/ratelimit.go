package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every request to one backend.
// A 429 from the backend pushes all callers back until the Retry-After has passed.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a limiter allowing rps sustained requests with the given burst.
// rps <= 0 disables the token bucket but keeps the 429 backoff.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimitError sets the backoff after a 429.
func (r *RateLimiter) RecordRateLimitError(retryAfterSeconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 30
	}
	r.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}

type rateLimitedProvider struct {
	next    Provider
	limiter *RateLimiter
}

// RateLimited wraps p so every call first waits on limiter.
func RateLimited(p Provider, limiter *RateLimiter) Provider {
	if limiter == nil {
		return p
	}
	return &rateLimitedProvider{next: p, limiter: limiter}
}

func (p *rateLimitedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	out, err := p.next.Complete(ctx, prompt)
	p.observe(err)
	return out, err
}

func (p *rateLimitedProvider) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	err := p.next.Stream(ctx, prompt, fn)
	p.observe(err)
	return err
}

func (p *rateLimitedProvider) observe(err error) {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		p.limiter.RecordRateLimitError(se.RetryAfter)
	}
}
