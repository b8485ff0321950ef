package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/logmail/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDefaultIntakeConfig(t *testing.T) {
	cfg := DefaultIntakeConfig()
	assert.Equal(t, float64(20), cfg.Rate)
	assert.Equal(t, 50, cfg.Burst)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 5*time.Minute, cfg.MaxAge)
}

func TestNew(t *testing.T) {
	t.Run("keeps explicit values", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 20, CleanupInterval: time.Second, MaxAge: time.Minute})
		defer rl.Stop()

		assert.Equal(t, float64(10), rl.Config().Rate)
		assert.Equal(t, 20, rl.Config().Burst)
		assert.Equal(t, time.Second, rl.Config().CleanupInterval)
	})

	t.Run("zero config takes intake defaults", func(t *testing.T) {
		rl := New(Config{})
		defer rl.Stop()

		assert.Equal(t, DefaultIntakeConfig(), rl.Config())
	})

	t.Run("Stop twice does not panic", func(t *testing.T) {
		rl := New(Config{})
		rl.Stop()
		assert.NotPanics(t, rl.Stop)
	})
}

func TestAllow(t *testing.T) {
	t.Run("blocks requests exceeding burst limit", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 3, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("192.168.1.1"), "request %d should be allowed", i)
		}
		assert.False(t, rl.Allow("192.168.1.1"))
	})

	t.Run("different clients have separate limits", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		rl.Allow("192.168.1.1")
		rl.Allow("192.168.1.1")
		assert.False(t, rl.Allow("192.168.1.1"))

		assert.True(t, rl.Allow("192.168.1.2"))
		assert.Equal(t, 2, rl.Len())
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		assert.True(t, rl.Allow("192.168.1.1"))
		assert.False(t, rl.Allow("192.168.1.1"))

		// 10 req/s = 100ms per token
		time.Sleep(150 * time.Millisecond)
		assert.True(t, rl.Allow("192.168.1.1"))
	})
}

func newRouter(rl *ClientRateLimiter) *gin.Engine {
	router := gin.New()
	router.POST("/api/logs", rl.Middleware("logs"), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return router
}

func post(router *gin.Engine, remote string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/logs", nil)
	req.RemoteAddr = remote
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()
	router := newRouter(rl)
	before := testutil.ToFloat64(metrics.HTTPRateLimited.WithLabelValues("logs"))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusAccepted, post(router, "192.168.1.1:12345").Code)
	}

	w := post(router, "192.168.1.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRateLimited.WithLabelValues("logs")))

	assert.Equal(t, http.StatusAccepted, post(router, "192.168.1.2:12345").Code)
}

func TestMiddlewareUsesForwardedClient(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	router := newRouter(rl)
	require.NoError(t, router.SetTrustedProxies([]string{"0.0.0.0/0", "::/0"}))
	router.ForwardedByClientIP = true

	send := func(client string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/logs", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", client)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, send("192.168.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.168.1.1"))
	assert.Equal(t, http.StatusAccepted, send("192.168.1.2"))
}

func TestCleanup(t *testing.T) {
	t.Run("removes stale entries", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 10, CleanupInterval: 50 * time.Millisecond, MaxAge: 100 * time.Millisecond})
		defer rl.Stop()

		rl.Allow("192.168.1.1")
		rl.Allow("192.168.1.2")
		assert.Equal(t, 2, rl.Len())

		assert.Eventually(t, func() bool { return rl.Len() == 0 }, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("keeps recently accessed entries", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 10, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		rl.Allow("192.168.1.1")
		rl.cleanupStaleEntries()
		assert.Equal(t, 1, rl.Len())
	})
}

func TestConcurrency(t *testing.T) {
	rl := New(Config{Rate: 1000, Burst: 1000, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.Allow("192.168.1.1")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, rl.Len())
}

func BenchmarkAllow(b *testing.B) {
	rl := New(Config{Rate: 1e6, Burst: 1e6, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rl.Allow("192.168.1.1")
	}
}
