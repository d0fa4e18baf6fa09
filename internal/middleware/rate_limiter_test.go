package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRateLimiter creates a rate limiter backed by miniredis.
func setupTestRateLimiter(t *testing.T, maxRequests int, window, block time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := NewRateLimiter(client, RateLimiterConfig{
		MaxRequests: maxRequests,
		Window:      window,
		BlockTime:   block,
	})
	return rl, mr
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func hit(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsRequestsUnderLimit(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 5, time.Minute, 5*time.Minute)
	router := limitedRouter(rl)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(router, "192.168.1.1").Code, "Request %d should succeed", i+1)
	}
}

func TestRateLimiter_BlocksRequestsOverLimit(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 5, time.Minute, 5*time.Minute)
	router := limitedRouter(rl)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, hit(router, "192.168.1.1").Code)
	}

	w := hit(router, "192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "too many requests")
}

func TestRateLimiter_DifferentIPsHaveSeparateBudgets(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 2, time.Minute, 5*time.Minute)
	router := limitedRouter(rl)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, hit(router, "10.0.0.1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.2").Code)
}

func TestRateLimiter_BlockOutlivesWindow(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute, 10*time.Minute)
	ctx := context.Background()

	allowed, _, err := rl.CheckLimit(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, retry, err := rl.CheckLimit(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 10*time.Minute, retry)

	// The counting window resets but the block stays.
	mr.FastForward(2 * time.Minute)
	allowed, retry, err = rl.CheckLimit(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 8*time.Minute, retry)

	mr.FastForward(9 * time.Minute)
	allowed, _, err = rl.CheckLimit(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_WindowOnlyWithoutBlockTime(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute, 0)
	ctx := context.Background()

	_, _, err := rl.CheckLimit(ctx, "10.0.0.3")
	require.NoError(t, err)
	allowed, retry, err := rl.CheckLimit(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, retry)

	mr.FastForward(61 * time.Second)
	allowed, _, err = rl.CheckLimit(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_FailsOpenWhenRedisIsDown(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute, time.Minute)
	router := limitedRouter(rl)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(router, "192.168.1.1").Code)
	}
}
