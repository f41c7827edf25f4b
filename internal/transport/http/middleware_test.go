package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/paylab/ledgerlab/internal/config"
)

func newLimitedRouter(t *testing.T, cfg config.RateLimitConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(cfg, zap.NewNop().Sugar()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r *gin.Engine, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_ThrottlesPerClient(t *testing.T) {
	r := newLimitedRouter(t, config.RateLimitConfig{RPS: 1, Burst: 2})

	assert.Equal(t, http.StatusOK, do(r, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, do(r, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, do(r, "10.0.0.1:1234"))

	// Buckets are keyed per client.
	assert.Equal(t, http.StatusOK, do(r, "10.0.0.2:1234"))
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	r := newLimitedRouter(t, config.RateLimitConfig{RPS: 0, Burst: 0})
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, do(r, "10.0.0.1:1234"))
	}
}
