package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/telekom/logmail/pkg/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	// Rate is the number of log records accepted per second per client
	Rate float64 `yaml:"rate"`
	// Burst is the maximum number of records accepted in a burst
	Burst int `yaml:"burst"`
	// CleanupInterval is how often to clean up stale entries
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration `yaml:"maxAge"`
}

// DefaultIntakeConfig returns the default limits for POST /api/logs:
// 20 records/s per client, burst of 50
func DefaultIntakeConfig() Config {
	return Config{
		Rate:            20,
		Burst:           50,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientRateLimiter limits requests per client IP
type ClientRateLimiter struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	config   Config
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a rate limiter and starts its cleanup goroutine. Zero fields
// take the intake defaults.
func New(cfg Config) *ClientRateLimiter {
	def := DefaultIntakeConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}

	rl := &ClientRateLimiter{
		entries: make(map[string]*entry),
		config:  cfg,
		done:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether a request from client may proceed
func (rl *ClientRateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.entries[client]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst)}
		rl.entries[client] = e
	}
	e.lastAccess = time.Now()
	return e.limiter.Allow()
}

// Middleware rejects requests over the limit with 429. route labels the
// rejection metric.
func (rl *ClientRateLimiter) Middleware(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			metrics.HTTPRateLimited.WithLabelValues(route).Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded, please try again later",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *ClientRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Done is closed once Stop has been called.
func (rl *ClientRateLimiter) Done() <-chan struct{} {
	return rl.done
}

func (rl *ClientRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

func (rl *ClientRateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for client, e := range rl.entries {
		if now.Sub(e.lastAccess) > rl.config.MaxAge {
			delete(rl.entries, client)
		}
	}
}

// Len returns the number of tracked clients
func (rl *ClientRateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.entries)
}

// Config returns the effective configuration
func (rl *ClientRateLimiter) Config() Config {
	return rl.config
}
