package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	clock := quartz.NewMock(t)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 2, BurstSize: 3, CleanupInterval: time.Minute}, clock)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("c1"), "request %d within burst", i+1)
	}
	assert.False(t, rl.Allow("c1"), "burst exhausted")

	clock.Set(clock.Now().Add(500 * time.Millisecond))
	assert.True(t, rl.Allow("c1"), "one token refilled")
	assert.False(t, rl.Allow("c1"))
}

func TestRateLimiter_IndependentClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 2}, quartz.NewMock(t))
	defer rl.Stop()

	assert.True(t, rl.AllowN("c1", 2))
	assert.False(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c2"))
	assert.Equal(t, 2, rl.LimiterCount())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1, CleanupInterval: time.Minute}, clock)
	defer rl.Stop()

	rl.Allow("idle")
	clock.Advance(time.Minute).MustWait(ctx)
	rl.Allow("active")
	assert.Equal(t, 2, rl.LimiterCount(), "idle client seen exactly one interval ago")

	clock.Advance(time.Minute).MustWait(ctx)
	assert.Equal(t, 1, rl.LimiterCount())
}

func TestRateLimiter_Gin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1}, quartz.NewMock(t))
	defer rl.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", c.GetHeader("X-User")) }, rl.Gin("user_id"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"))
	assert.Equal(t, http.StatusOK, do("bob"))
}
