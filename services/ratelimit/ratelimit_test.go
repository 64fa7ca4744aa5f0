package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	now := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	l := PerMinute(2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "clients are limited independently")

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("a"), "a token is refilled every 30s")
	assert.False(t, l.Allow("a"))

	now = now.Add(11 * time.Minute)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 2, l.Sweep())
	assert.Equal(t, 0, l.Len())
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	l := PerMinute(1)
	e.POST("/reset", func(ctx echo.Context) error {
		return ctx.NoContent(http.StatusNoContent)
	}, l.Middleware(nil))

	tests := []struct {
		ip       string
		wantCode int
	}{
		{"10.0.0.1", http.StatusNoContent},
		{"10.0.0.1", http.StatusTooManyRequests},
		{"10.0.0.2", http.StatusNoContent},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/reset", nil)
		req.Header.Set(echo.HeaderXRealIP, tc.ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.wantCode, rec.Code, tc.ip)
		if tc.wantCode == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
}
