package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const MsgRateLimited = "Too many requests"

// RateLimitConfig throttles requests per client IP with a token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Skipper selects requests that are not throttled.
	Skipper echomw.Skipper
	// IdleTTL drops buckets untouched for this long. Zero keeps them a minute.
	IdleTTL time.Duration

	now func() time.Time
}

// DefaultRateLimitConfig suits the credential endpoints: a few attempts per
// second from one address.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 5, BurstSize: 10}
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

type limiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	rate      float64
	burst     float64
	idleTTL   time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{
		buckets: make(map[string]*tokenBucket),
		rate:    cfg.RequestsPerSecond,
		burst:   float64(cfg.BurstSize),
		idleTTL: cfg.IdleTTL,
		now:     cfg.now,
	}
	if l.idleTTL <= 0 {
		l.idleTTL = time.Minute
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.lastPrune = l.now()
	return l
}

// allow takes a token for key. When none is left it returns the seconds until
// one will be.
func (l *limiter) allow(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}
	b.tokens += now.Sub(b.lastRefill).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 1
	}
	return false, int(math.Ceil((1 - b.tokens) / l.rate))
}

func (l *limiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.idleTTL {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastRefill) >= l.idleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastPrune = now
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit answers 429 with Retry-After once a client IP exhausts its
// bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(cfg, newLimiter(cfg))
}

func rateLimit(cfg RateLimitConfig, l *limiter) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, retryAfter := l.allow(c.RealIP())
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, MsgRateLimited)
			}
			return next(c)
		}
	}
}

// OnlyPaths skips every request whose route path is not listed.
func OnlyPaths(paths ...string) echomw.Skipper {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(c echo.Context) bool {
		p := c.Path()
		if p == "" {
			p = c.Request().URL.Path
		}
		return !set[p]
	}
}
