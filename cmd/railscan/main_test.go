package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/railscan"
	"github.com/e7canasta/railscan/internal/config"
	"github.com/e7canasta/railscan/internal/enginetest"
	"github.com/e7canasta/railscan/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the controller and log handlers
// writing concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	engine  *enginetest.Engine
	signals chan chan<- os.Signal
	stdout  *syncBuffer
	stderr  *syncBuffer
	infer   string
	reports string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range config.EnvKeys() {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	infer := filepath.Join(dir, "config_infer_primary_yoloV11.txt")
	require.NoError(t, os.WriteFile(infer, []byte("[property]\n"), 0o600))

	h := &harness{
		engine:  enginetest.New(),
		signals: make(chan chan<- os.Signal, 1),
		stdout:  &syncBuffer{},
		stderr:  &syncBuffer{},
		infer:   infer,
		reports: filepath.Join(dir, "reports"),
	}

	prevEngine, prevNotify, prevLogger := newEngine, notifySignals, slog.Default()
	newEngine = func() (railscan.Engine, error) { return h.engine, nil }
	notifySignals = func(c chan<- os.Signal) func() {
		h.signals <- c
		return func() {}
	}
	t.Cleanup(func() {
		newEngine, notifySignals = prevEngine, prevNotify
		slog.SetDefault(prevLogger)
	})
	return h
}

func (h *harness) run(args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(h.stdout)
	root.SetErr(h.stderr)
	return root.Execute()
}

func (h *harness) runPipeline(extra ...string) error {
	t := append([]string{"run", "file:///data/railway_fault.mp4", "--report-dir", h.reports}, extra...)
	return h.run(t...)
}

func (h *harness) onlyReport(t *testing.T) report.Session {
	t.Helper()
	entries, err := os.ReadDir(h.reports)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	s, err := report.Read(filepath.Join(h.reports, entries[0].Name()))
	require.NoError(t, err)
	return s
}

func TestRun_EndOfStream(t *testing.T) {
	h := newHarness(t)
	t.Setenv("RAILSCAN_INFER_CONFIG", h.infer)
	h.engine.Emit(railscan.WarningMessage("source", "slow decoder", ""))
	h.engine.Emit(railscan.EndOfStream("deepstream-pipeline"))

	err := h.runPipeline()
	require.NoError(t, err)
	assert.Equal(t, exitOK, exitCode(err))

	out := h.stdout.String()
	assert.Contains(t, out, "Pipeline is running...")
	assert.Contains(t, out, "End of stream")

	s := h.onlyReport(t)
	assert.Equal(t, "end_of_stream", s.Reason)
	assert.Equal(t, exitOK, s.ExitCode)
	assert.Equal(t, uint64(1), s.Warnings)
	assert.Equal(t, "file:///data/railway_fault.mp4", s.URI)
	assert.Nil(t, s.Error)
}

func TestRun_RuntimeError(t *testing.T) {
	h := newHarness(t)
	t.Setenv("RAILSCAN_INFER_CONFIG", h.infer)
	h.engine.Emit(railscan.ErrorMessage("source", "Resource not found.", "gstfilesrc.c(533): file not found"))

	err := h.runPipeline()
	require.Error(t, err)
	assert.Equal(t, exitRuntime, exitCode(err))

	errOut := h.stderr.String()
	assert.Contains(t, errOut, "ERROR from element source: Resource not found.")
	assert.Contains(t, errOut, "Debugging info: gstfilesrc.c(533): file not found")

	s := h.onlyReport(t)
	require.NotNil(t, s.Error)
	assert.Equal(t, "source", s.Error.Element)
	assert.Equal(t, "resource", s.Error.Category)
	assert.Equal(t, exitRuntime, s.ExitCode)
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*enginetest.Engine)
		code  int
	}{
		{"missing plugin", func(e *enginetest.Engine) { e.MissingPlugins["nvinfer"] = true }, exitBuild},
		{"link refused", func(e *enginetest.Engine) { e.RejectPadLink = true }, exitBuild},
		{"playing refused", func(e *enginetest.Engine) { e.RejectPlaying = true }, exitTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			t.Setenv("RAILSCAN_INFER_CONFIG", h.infer)
			tt.setup(h.engine)

			err := h.runPipeline()
			require.Error(t, err)
			assert.Equal(t, tt.code, exitCode(err))
			assert.Equal(t, tt.code, h.onlyReport(t).ExitCode)
		})
	}
}

func TestRun_InvalidConfiguration(t *testing.T) {
	h := newHarness(t)

	// No inference config anywhere
	err := h.runPipeline()
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
	assert.Empty(t, h.engine.CallLog(), "engine must not be touched on invalid configuration")
}

func TestRun_InterruptRequestsEndOfStream(t *testing.T) {
	h := newHarness(t)
	t.Setenv("RAILSCAN_INFER_CONFIG", h.infer)

	go func() {
		sigCh := <-h.signals
		for !strings.Contains(h.stdout.String(), "Pipeline is running...") {
			time.Sleep(time.Millisecond)
		}
		sigCh <- os.Interrupt
	}()

	done := make(chan error, 1)
	go func() { done <- h.runPipeline() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after interrupt")
	}

	assert.Contains(t, h.engine.CallLog(), "send-eos")
	assert.Equal(t, "interrupt", h.onlyReport(t).Reason)
}

func TestConfigCommand(t *testing.T) {
	h := newHarness(t)
	t.Setenv("RAILSCAN_MUX_WIDTH", "640")

	require.NoError(t, h.run("config", "rtsp://cam/stream"))
	out := h.stdout.String()
	assert.Contains(t, out, "uri: rtsp://cam/stream")
	assert.Contains(t, out, "width: 640")
	assert.Contains(t, out, "plugin: nvdsosd")
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("version"))
	assert.Equal(t, "railscan "+version+"\n", h.stdout.String())
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)

	err := h.run("run", "a", "b")
	assert.Equal(t, exitConfig, exitCode(err))

	err = h.run("run", "--no-such-flag")
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, exitOK},
		{railscan.ErrInterrupted, exitOK},
		{&railscan.ConfigError{Err: errors.New("bad")}, exitConfig},
		{&railscan.StageCreationError{Kind: railscan.KindSink}, exitBuild},
		{&railscan.PropertyError{Kind: railscan.KindOverlay, Property: "font"}, exitBuild},
		{&railscan.LinkError{From: railscan.KindSource, To: railscan.KindAggregator}, exitBuild},
		{errEngineUnavailable, exitBuild},
		{&railscan.TransitionError{From: railscan.StateReady, To: railscan.StatePlaying}, exitTransition},
		{&railscan.RuntimeError{Source: "osd"}, exitRuntime},
		{errors.New("anything"), exitRuntime},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.code, exitCode(tt.err))
		})
	}
}

func TestLevelSplitHandler(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := newLogger(&stdout, &stderr, false)

	logger.Debug("hidden")
	logger.Info("railscan: pipeline playing", "run_id", "r1")
	logger.With("component", "bus").Warn("railscan: pipeline warning")
	logger.WithGroup("g").Error("railscan: pipeline error", "k", "v")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "pipeline playing")
	assert.NotContains(t, stdout.String(), "pipeline warning")

	errOut := stderr.String()
	assert.Contains(t, errOut, "pipeline warning")
	assert.Contains(t, errOut, "component=bus")
	assert.Contains(t, errOut, "g.k=v")
	assert.Equal(t, 2, strings.Count(errOut, "\n"))

	debug := newLogger(&stdout, &stderr, true)
	debug.Debug("now visible")
	assert.Contains(t, stdout.String(), "now visible")
}
