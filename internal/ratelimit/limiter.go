package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different external APIs we interact with
type API string

const (
	// APISSE represents the Shanghai Stock Exchange query API
	APISSE API = "sse"
	// APIFeishu represents the Feishu open API
	APIFeishu API = "feishu"
)

// Limiter manages rate limits for different APIs.
// A nil *Limiter never blocks.
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// New creates a Limiter with one token bucket per API, allowing perSecond
// events per second with a burst of one. Non-positive rates mean unlimited.
func New(perSecond map[API]float64) *Limiter {
	l := &Limiter{
		limiters: make(map[API]*rate.Limiter, len(perSecond)),
	}
	for api, r := range perSecond {
		l.Set(api, r)
	}
	return l
}

// Set replaces the limit for api.
func (l *Limiter) Set(api API, perSecond float64) {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	l.mu.Lock()
	l.limiters[api] = rate.NewLimiter(limit, 1)
	l.mu.Unlock()
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	limiter := l.get(api)
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// Allow reports whether an event for the given API may happen now
func (l *Limiter) Allow(api API) bool {
	limiter := l.get(api)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (l *Limiter) get(api API) *rate.Limiter {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[api]
}
