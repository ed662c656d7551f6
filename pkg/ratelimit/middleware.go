package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/pkg/errors"
	"bizpulse/pkg/metrics"
)

var ErrRateLimited = errors.NewError("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Options is the request budget of one API client.
type Options struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultOptions() Options {
	return Options{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// OptionsFrom overlays the configured values on DefaultOptions. Intervals
// are configured in seconds.
func OptionsFrom(cfg config.RateLimitConfig) Options {
	opts := DefaultOptions()
	if cfg.RPS > 0 {
		opts.RPS = cfg.RPS
	}
	if cfg.Burst > 0 {
		opts.Burst = cfg.Burst
	}
	if cfg.CleanupInterval > 0 {
		opts.CleanupInterval = time.Duration(cfg.CleanupInterval) * time.Second
	}
	if cfg.MaxAge > 0 {
		opts.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return opts
}

// Middleware limits requests per acting user, falling back to the client IP
// for anonymous callers such as lifecycle hooks. Idle clients are forgotten
// after MaxAge; the janitor stops with ctx.
func Middleware(ctx context.Context, opts Options) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	go func() {
		ticker := time.NewTicker(opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				mu.Lock()
				for key, cl := range clients {
					if now.Sub(cl.lastSeen) > opts.MaxAge {
						delete(clients, key)
					}
				}
				mu.Unlock()
			}
		}
	}()

	limit := strconv.FormatFloat(opts.RPS, 'f', -1, 64)

	return func(c *gin.Context) {
		key := clientKey(c)

		mu.Lock()
		cl, ok := clients[key]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst)}
			clients[key] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		c.Header("X-RateLimit-Limit", limit)

		if !cl.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errors.ToErrorResponse(ErrRateLimited))
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		remaining := int(cl.limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if id := c.GetHeader(constants.HeaderUserID); id != "" {
		return "user:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.RemoteIP()
	}
	return "ip:" + ip
}
