package telemetry_test

import (
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/railscan"
	"github.com/e7canasta/railscan/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserverCallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.New(reg)

	m.OnState(railscan.StateNull, railscan.StateReady)
	m.OnState(railscan.StateReady, railscan.StatePlaying)
	m.OnMessage(railscan.WarningMessage("src", "late buffer", ""))
	m.OnMessage(railscan.WarningMessage("src", "late buffer", ""))
	m.OnMessage(railscan.EndOfStream("pipeline"))
	m.OnRuntimeError(&railscan.RuntimeError{Source: "primary-inference", Category: railscan.ErrCategoryModel})
	m.OnFrame(time.Unix(1700000000, 0))
	m.OnFrame(time.Unix(1700000001, 0))

	assert.Equal(t, float64(railscan.StatePlaying), testutil.ToFloat64(m.State))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("playing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BusMessages.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusMessages.WithLabelValues("eos")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuntimeErrors.WithLabelValues("model")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames))
	assert.Equal(t, 1700000001.0, testutil.ToFloat64(m.LastFrame))
}

func TestMetrics_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.New(reg)
	m.OnFrame(time.Now())

	expected := `
# HELP railscan_frames_total Buffers observed entering the overlay stage
# TYPE railscan_frames_total counter
railscan_frames_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "railscan_frames_total"))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Two controllers in one process must not collide
	require.NotPanics(t, func() {
		telemetry.New(prometheus.NewRegistry())
		telemetry.New(prometheus.NewRegistry())
	})
}
