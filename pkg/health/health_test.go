package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveCheck(t *testing.T, handler http.HandlerFunc) (int, statusResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, body
}

func TestReady_RequiresManualFlag(t *testing.T) {
	h := New()

	code, body := serveCheck(t, h.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, body = serveCheck(t, h.Ready)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestCheck_FailureThreshold(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.Register(Check{Name: "postgres", Kind: Readiness, Func: Ping(pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))})
	s := h.checks[0]
	ctx := context.Background()

	s.run(ctx)
	s.run(ctx)
	code, _ := serveCheck(t, h.Ready)
	assert.Equal(t, http.StatusOK, code, "below threshold")

	s.run(ctx)
	code, body := serveCheck(t, h.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Checks["postgres"], "connection refused")

	code, _ = serveCheck(t, h.Live)
	assert.Equal(t, http.StatusOK, code, "readiness failures do not affect liveness")
}

func TestCheck_RecoversAfterSuccess(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	h := New()
	h.Register(Check{Name: "redis", Kind: Liveness, FailureThreshold: 1, Func: func(context.Context) error {
		if failing.Load() {
			return errors.New("down")
		}
		return nil
	}})
	s := h.checks[0]

	s.run(context.Background())
	assert.Contains(t, h.Failures(Liveness), "redis")

	failing.Store(false)
	s.run(context.Background())
	assert.Empty(t, h.Failures(Liveness))
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.Register(Check{Name: "slow", Kind: Liveness, Timeout: 10 * time.Millisecond, FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	h.checks[0].run(context.Background())
	assert.Contains(t, h.Failures(Liveness)["slow"], "deadline exceeded")
}

func TestRun_StopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.Register(Check{Name: "count", Kind: Liveness, Func: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGoroutineCount(t *testing.T) {
	require.NoError(t, GoroutineCount(1_000_000)(context.Background()))
	require.Error(t, GoroutineCount(0)(context.Background()))
}
