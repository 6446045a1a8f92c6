package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollStatus(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ui/explore/status?job_id=job-1", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestLimiter_BurstThenTooManyRequests(t *testing.T) {
	t.Parallel()
	// One token per hour: only the burst gets through.
	h := RateLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 1.0 / 3600, Burst: 3})(okHandler())

	for i := 0; i < 3; i++ {
		rec := pollStatus(h, "10.0.0.1:5000")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := pollStatus(h, "10.0.0.1:5001")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestLimiter_RemainingHeaderCountsDown(t *testing.T) {
	t.Parallel()
	h := RateLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 1.0 / 3600, Burst: 2})(okHandler())

	assert.Equal(t, "1", pollStatus(h, "10.0.0.2:1").Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "0", pollStatus(h, "10.0.0.2:1").Header().Get("X-RateLimit-Remaining"))
}

func TestLimiter_BucketsArePerClient(t *testing.T) {
	t.Parallel()
	h := RateLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 1.0 / 3600, Burst: 1})(okHandler())

	assert.Equal(t, http.StatusOK, pollStatus(h, "192.168.1.10:4000").Code)
	assert.Equal(t, http.StatusTooManyRequests, pollStatus(h, "192.168.1.10:4001").Code)
	assert.Equal(t, http.StatusOK, pollStatus(h, "192.168.1.11:4000").Code)
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		remoteAddr string
		forwarded  string
		want       string
	}{
		{remoteAddr: "10.1.2.3:8080", want: "10.1.2.3"},
		{remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{remoteAddr: "10.1.2.3:8080", forwarded: "203.0.113.9", want: "10.1.2.3"},
		{remoteAddr: "unix-socket", want: "unix-socket"},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr+"|"+tt.forwarded, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/v1/query-jobs", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestLimiter_SweepDropsIdleClients(t *testing.T) {
	t.Parallel()

	l := NewLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 10, Burst: 10})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.get("10.0.0.1")
	now = now.Add(idleTimeout / 2)
	l.get("10.0.0.2")
	now = now.Add(idleTimeout/2 + time.Second)

	assert.Equal(t, 1, l.sweep(idleTimeout))
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.Contains(t, l.clients, "10.0.0.2")
}
