package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// SkipPrefixes are never limited
	SkipPrefixes []string
	// IdleTTL is how long an idle client's bucket is kept
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the default limits. Health checks and metrics
// scrapes are not limited.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		SkipPrefixes:      []string{"/health", "/metrics"},
		IdleTTL:           10 * time.Minute,
	}
}

type limiters struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *limiters) get(ip string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.IdleTTL > 0 && now.Sub(l.lastSweep) > l.cfg.IdleTTL {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > l.cfg.IdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (l *limiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return newLimiters(cfg, time.Now).handler()
}

func newLimiters(cfg RateLimitConfig, now func() time.Time) *limiters {
	return &limiters{
		cfg:       cfg,
		now:       now,
		clients:   make(map[string]*client),
		lastSweep: now(),
	}
}

func (l *limiters) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, l.cfg.SkipPrefixes) {
			c.Next()
			return
		}
		if !l.get(c.ClientIP()).Allow() {
			reject(c, l.cfg.RequestsPerSecond)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, cfg.SkipPrefixes) {
			c.Next()
			return
		}
		if !limiter.Allow() {
			reject(c, cfg.RequestsPerSecond)
			return
		}
		c.Next()
	}
}

func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func reject(c *gin.Context, rps int) {
	retry := 1
	if rps > 0 {
		retry = int(math.Ceil(1 / float64(rps)))
	}
	c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
}
