// Package throughput measures the rate at which frames reach the overlay
// stage. A Meter is registered as a railscan.Observer and fed from the
// buffer probe on the overlay sink pad.
package throughput

import (
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/railscan"
)

// DefaultWindow is the number of recent frame timestamps kept for Stats.
const DefaultWindow = 300

// Meter keeps a ring of recent frame timestamps plus a running total.
type Meter struct {
	mu      sync.Mutex
	ring    []time.Time
	next    int
	filled  bool
	total   uint64
	started time.Time
	stopped time.Time
}

// NewMeter returns a meter holding up to window timestamps. A window
// smaller than 2 uses DefaultWindow.
func NewMeter(window int) *Meter {
	if window < 2 {
		window = DefaultWindow
	}
	return &Meter{ring: make([]time.Time, window)}
}

// OnFrame records one frame. Called from streaming threads.
func (m *Meter) OnFrame(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.ring[m.next] = at
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.filled = true
	}
}

// OnState marks the playing interval used for the session average.
func (m *Meter) OnState(from, to railscan.LifecycleState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case to == railscan.StatePlaying:
		m.started = time.Now()
	case from == railscan.StatePlaying:
		m.stopped = time.Now()
	}
}

func (m *Meter) OnMessage(railscan.ControlMessage) {}

func (m *Meter) OnRuntimeError(*railscan.RuntimeError) {}

// Total returns the number of frames seen so far.
func (m *Meter) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Recent computes Stats over the timestamps currently in the ring.
func (m *Meter) Recent() Stats {
	m.mu.Lock()
	times := m.window()
	m.mu.Unlock()

	if len(times) < 2 {
		return Stats{Frames: len(times)}
	}
	return Compute(times, elapsed(times))
}

// elapsed converts the first-to-last span, which holds n-1 intervals, into
// the n-interval duration Compute expects.
func elapsed(times []time.Time) time.Duration {
	span := times[len(times)-1].Sub(times[0])
	return span + span/time.Duration(len(times)-1)
}

// window returns the ring contents oldest first. Caller holds mu.
func (m *Meter) window() []time.Time {
	if !m.filled {
		return append([]time.Time(nil), m.ring[:m.next]...)
	}
	out := make([]time.Time, 0, len(m.ring))
	out = append(out, m.ring[m.next:]...)
	return append(out, m.ring[:m.next]...)
}

// Summary is the whole-session throughput figure.
type Summary struct {
	Frames     uint64        `json:"frames"`
	Playing    time.Duration `json:"playing_ns"`
	AverageFPS float64       `json:"average_fps"`
	Recent     Stats         `json:"recent"`
}

// Summary returns total frames divided by time spent playing. While still
// playing the interval ends now.
func (m *Meter) Summary() Summary {
	recent := m.Recent()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Frames: m.total, Recent: recent}
	if m.started.IsZero() {
		return s
	}
	end := m.stopped
	if end.IsZero() || end.Before(m.started) {
		end = time.Now()
	}
	s.Playing = end.Sub(m.started)
	if s.Playing > 0 {
		s.AverageFPS = float64(m.total) / s.Playing.Seconds()
	}
	return s
}

// Log writes the current summary at info level.
func (m *Meter) Log() {
	s := m.Summary()
	slog.Info("railscan: throughput",
		"frames", s.Frames,
		"average_fps", s.AverageFPS,
		"recent_fps", s.Recent.FPSMean,
		"stable", s.Recent.Stable,
	)
}
