// Package ratelimit throttles requests per client key with token buckets.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type (
	// KeyFunc extracts the client key of a request. Defaults to the client IP.
	KeyFunc func(ctx echo.Context) string

	entry struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	// Limiter keeps one token bucket per client key.
	Limiter struct {
		mu      sync.Mutex
		limit   rate.Limit
		burst   int
		ttl     time.Duration
		clients map[string]*entry
		now     func() time.Time
	}
)

// PerMinute returns a Limiter allowing `n` requests per minute per client, in bursts of up to `n`.
func PerMinute(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return New(rate.Every(time.Minute/time.Duration(n)), n, 10*time.Minute)
}

// New returns a Limiter. Clients unseen for `ttl` are forgotten.
func New(limit rate.Limit, burst int, ttl time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		clients: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow reports whether a request from `key` may proceed and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.clients[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Sweep forgets the clients unseen for longer than the Limiter's ttl and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int
	cutoff := l.now().Add(-l.ttl)
	for key, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
func (l *Limiter) Middleware(keyFunc KeyFunc) echo.MiddlewareFunc {
	if keyFunc == nil {
		keyFunc = func(ctx echo.Context) string { return ctx.RealIP() }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !l.Allow(keyFunc(ctx)) {
				ctx.Response().Header().Set("Retry-After", "60")
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
			}
			return next(ctx)
		}
	}
}
