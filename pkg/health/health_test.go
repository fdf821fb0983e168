package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func probeBody(t *testing.T, h http.HandlerFunc, target string) (int, statusResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	var body statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("all passing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, passing())
		h.AddLivenessCheck("gc", time.Second, passing())

		code, body := probeBody(t, h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
	})

	t.Run("no checks registered is healthy", func(t *testing.T) {
		code, body := probeBody(t, New().LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
	})

	t.Run("failing check reported after threshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("db", time.Second, failing("connection refused"))

		ctx := context.Background()
		for range defaultFailureThreshold {
			h.liveness[0].run(ctx)
		}

		code, body := probeBody(t, h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Checks["db"])
	})

	t.Run("failures below threshold stay healthy", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("flaky", time.Second, failing("temporary"))

		ctx := context.Background()
		for range defaultFailureThreshold - 1 {
			h.liveness[0].run(ctx)
		}

		code, _ := probeBody(t, h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusOK, code)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("gate closed by default", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing())

		code, body := probeBody(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Checks, "_readiness")
	})

	t.Run("ready once gate opens", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing())
		h.SetReady(true)

		code, body := probeBody(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
	})

	t.Run("closing the gate drains", func(t *testing.T) {
		h := New()
		h.SetReady(true)
		code, _ := probeBody(t, h.ReadyEndpoint, "/readyz")
		require.Equal(t, http.StatusOK, code)

		h.SetReady(false)
		code, _ = probeBody(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("only the failing check is named", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing())
		h.AddReadinessCheck("gateway", time.Second, failing("503 from upstream"))
		h.SetReady(true)

		ctx := context.Background()
		for range defaultFailureThreshold {
			h.readiness[1].run(ctx)
		}

		code, body := probeBody(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Checks, "gateway")
		assert.NotContains(t, body.Checks, "postgres")
	})
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())

	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())
	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestProbeRecovery(t *testing.T) {
	down := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	p := h.liveness[0]
	ctx := context.Background()

	for range defaultFailureThreshold {
		p.run(ctx)
	}
	assert.False(t, p.healthy.Load())

	down = false
	p.run(ctx)
	assert.True(t, p.healthy.Load(), "one success should recover the probe")
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing())

	h.Start(context.Background(), 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	h.Stop()
	h.Stop() // idempotent
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("a", time.Second, failing("err"))
	h.AddReadinessCheck("b", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				probeBody(t, h.LiveEndpoint, "/livez")
				probeBody(t, h.ReadyEndpoint, "/readyz")
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestBuiltinCheckers(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")

	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
