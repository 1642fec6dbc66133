package middleware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request (e.g. IP, user ID)
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc:        UserOrIPKey,
	}
}

// UserOrIPKey limits authenticated callers per identity and anonymous ones per IP
func UserOrIPKey(c *gin.Context) string {
	if id, ok := CurrentUserID(c); ok {
		return fmt.Sprintf("user:%d", id)
	}
	return "ip:" + c.ClientIP()
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements rate limiting middleware for Gin
type RateLimiter struct {
	mu       sync.Mutex
	options  RateLimiterOptions
	clients  map[string]*client
	logger   *logger.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = UserOrIPKey
	}

	r := &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go r.cleanup()
	return r
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)

		if !r.Allow(key) {
			r.logger.Warn("rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError(errors.CodeRateLimited, "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Allow consumes one token for key
func (r *RateLimiter) Allow(key string) bool {
	return r.getLimiter(key).Allow()
}

// Stop ends the cleanup goroutine
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (r *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			for k, v := range r.clients {
				if time.Since(v.lastSeen) > r.options.ExpiryDuration {
					delete(r.clients, k)
				}
			}
			r.mu.Unlock()
		case <-r.stop:
			return
		}
	}
}
