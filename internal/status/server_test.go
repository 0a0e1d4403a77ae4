package status_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/railscan"
	"github.com/e7canasta/railscan/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fixedSnapshot railscan.Snapshot

func (f fixedSnapshot) Snapshot() railscan.Snapshot { return railscan.Snapshot(f) }

func newRouter(state railscan.LifecycleState) http.Handler {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "railscan_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	snap := fixedSnapshot{RunID: "run-1", State: state.String(), URI: "file:///clip.mp4"}
	return status.NewRouter(snap, reg, func() any { return map[string]int{"frames": 42} })
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state railscan.LifecycleState
		code  int
	}{
		{railscan.StateNull, http.StatusServiceUnavailable},
		{railscan.StateReady, http.StatusServiceUnavailable},
		{railscan.StatePlaying, http.StatusOK},
		{railscan.StateStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(tt.state).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestStatus_JSON(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(railscan.StatePlaying).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "playing", body["state"])
	assert.Equal(t, "file:///clip.mp4", body["uri"])
	assert.Equal(t, map[string]any{"frames": 42.0}, body["throughput"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(railscan.StatePlaying).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "railscan_test_total 1")
}

func TestServer_RunAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := status.New("127.0.0.1:0", newRouter(railscan.StatePlaying))
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := status.New("256.0.0.1:bad", http.NotFoundHandler())
	assert.Error(t, srv.Run(context.Background()))
}
