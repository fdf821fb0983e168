package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limited(t *testing.T, cfg RateLimitConfig) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return RateLimit(ctx, cfg)(okHandler())
}

func hit(h http.Handler, remoteAddr string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 5, Window: time.Minute})

	for i := range 5 {
		rec := hit(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimitEnvelope(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 2, Window: time.Minute})

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999", nil).Code)
	}

	rec := hit(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "RATE_LIMITED", body["code"])
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234", nil).Code)
	// Same IP, different port: still the same bucket.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", xff).Code)
	// Different proxy hop, same original client.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:5555", xff).Code)
}

func TestRateLimit_SessionKey(t *testing.T) {
	h := limited(t, RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: SessionKey("shop_session"),
	})

	// Two guests behind the same IP with distinct sessions get separate
	// buckets.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.9:1", map[string]string{"X-Session-ID": "guest-a"}).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.9:2", map[string]string{"X-Session-ID": "guest-b"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.9:3", map[string]string{"X-Session-ID": "guest-a"}).Code)

	// A cookie works as well as the header.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:4"
	req.AddCookie(&http.Cookie{Name: "shop_session", Value: "guest-c"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No session at all falls back to the IP bucket.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.10:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.10:2", nil).Code)
}
