package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"holdem-engine/internal/logger"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	CleanupInterval   time.Duration
}

var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 10.0,
	BurstSize:         20,
	CleanupInterval:   5 * time.Minute,
}

// Websocket frames are limited per player, tighter than HTTP.
var DefaultSocketLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 5.0,
	BurstSize:         10,
	CleanupInterval:   5 * time.Minute,
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client token buckets. Buckets idle for longer
// than CleanupInterval are dropped.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	config   RateLimiterConfig
	clock    quartz.Clock
	log      zerolog.Logger
	cancel   context.CancelFunc
}

func NewRateLimiter(config RateLimiterConfig, clock quartz.Clock) *RateLimiter {
	if clock == nil {
		clock = quartz.NewReal()
	}
	ctx, cancel := context.WithCancel(context.Background())
	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		config:   config,
		clock:    clock,
		log:      logger.With("ratelimit"),
		cancel:   cancel,
	}
	if config.CleanupInterval > 0 {
		clock.TickerFunc(ctx, config.CleanupInterval, func() error {
			rl.cleanup()
			return nil
		}, "ratelimit", "cleanup")
	}
	return rl
}

// Allow checks if a request from the given client ID should be allowed.
func (rl *RateLimiter) Allow(clientID string) bool {
	return rl.AllowN(clientID, 1)
}

func (rl *RateLimiter) AllowN(clientID string, n int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	cl, ok := rl.limiters[clientID]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.limiters[clientID] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, n)
}

// LimiterCount returns the number of tracked clients.
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.clock.Now().Add(-rl.config.CleanupInterval)
	removed := 0
	for clientID, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, clientID)
			removed++
		}
	}
	if removed > 0 {
		rl.log.Debug().Int("removed", removed).Msg("dropped idle rate limiters")
	}
}

// Stop ends the cleanup ticker.
func (rl *RateLimiter) Stop() {
	rl.cancel()
}

// Gin returns a middleware keyed by the authenticated user when present,
// otherwise by client IP.
func (rl *RateLimiter) Gin(userKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString(userKey)
		if clientID == "" {
			clientID = c.ClientIP()
		}
		if !rl.Allow(clientID) {
			rl.log.Warn().Str("client", clientID).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please slow down."})
			return
		}
		c.Next()
	}
}
