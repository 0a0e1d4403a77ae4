// Package telemetry exports pipeline activity as Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/e7canasta/railscan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements railscan.Observer.
type Metrics struct {
	BusMessages   *prometheus.CounterVec
	RuntimeErrors *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	State         prometheus.Gauge
	Frames        prometheus.Counter
	LastFrame     prometheus.Gauge
}

// New registers the railscan collectors on reg. Passing a fresh registry
// per controller keeps tests independent of the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BusMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "railscan_bus_messages_total",
			Help: "Control messages handled by the supervision loop, by kind",
		}, []string{"kind"}),
		RuntimeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "railscan_runtime_errors_total",
			Help: "Runtime errors reported by the running graph, by category",
		}, []string{"category"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "railscan_lifecycle_transitions_total",
			Help: "Lifecycle transitions, by target state",
		}, []string{"to"}),
		State: f.NewGauge(prometheus.GaugeOpts{
			Name: "railscan_lifecycle_state",
			Help: "Current lifecycle state (0=null 1=ready 2=playing 3=stopped)",
		}),
		Frames: f.NewCounter(prometheus.CounterOpts{
			Name: "railscan_frames_total",
			Help: "Buffers observed entering the overlay stage",
		}),
		LastFrame: f.NewGauge(prometheus.GaugeOpts{
			Name: "railscan_last_frame_timestamp_seconds",
			Help: "Unix time of the most recent buffer observed at the overlay stage",
		}),
	}
}

func (m *Metrics) OnState(_, to railscan.LifecycleState) {
	m.State.Set(float64(to))
	m.Transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) OnMessage(msg railscan.ControlMessage) {
	m.BusMessages.WithLabelValues(msg.Kind.String()).Inc()
}

func (m *Metrics) OnRuntimeError(err *railscan.RuntimeError) {
	m.RuntimeErrors.WithLabelValues(err.Category.String()).Inc()
}

func (m *Metrics) OnFrame(at time.Time) {
	m.Frames.Inc()
	m.LastFrame.Set(float64(at.UnixMilli()) / 1e3)
}
