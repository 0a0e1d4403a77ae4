package railscan

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Observer receives lifecycle notifications from a Controller.
//
// OnFrame is called from engine streaming threads; the other methods are
// called from the control goroutine.
type Observer interface {
	OnState(from, to LifecycleState)
	OnMessage(msg ControlMessage)
	OnRuntimeError(err *RuntimeError)
	OnFrame(at time.Time)
}

// StopReason tells why the control loop ended.
type StopReason string

const (
	// StopEndOfStream means the graph drained on its own.
	StopEndOfStream StopReason = "end_of_stream"
	// StopError means an element posted an error on the bus.
	StopError StopReason = "error"
	// StopInterrupt means end-of-stream followed an Interrupt call.
	StopInterrupt StopReason = "interrupt"
)

// Outcome summarizes one supervised session.
type Outcome struct {
	RunID     string
	StartedAt time.Time
	StoppedAt time.Time
	Reason    StopReason
	// Err is set when Reason is StopError
	Err      *RuntimeError
	Warnings uint64
	// Messages counts every handled message by MessageKind string
	Messages map[string]uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithStdout sets the writer for informational notices (default os.Stdout).
func WithStdout(w io.Writer) Option {
	return func(c *Controller) { c.stdout = w }
}

// WithStderr sets the writer for failure reports (default os.Stderr).
func WithStderr(w io.Writer) Option {
	return func(c *Controller) { c.stderr = w }
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(c *Controller) { c.runID = id }
}

// Controller owns the graph and drives it Null -> Ready -> Playing -> Stopped.
//
// Build, Play, Run and Teardown must be called from a single goroutine in
// that order. Interrupt, State and Snapshot are safe from any goroutine.
type Controller struct {
	engine    Engine
	cfg       PipelineConfig
	runID     string
	stdout    io.Writer
	stderr    io.Writer
	observers []Observer

	state atomic.Int32

	mu       sync.Mutex // guards graph, bus and released against Interrupt
	graph    *Graph
	bus      Bus
	released bool

	interrupts atomic.Uint32
	outcome    Outcome
}

// NewController validates cfg and returns a controller in StateNull.
func NewController(engine Engine, cfg PipelineConfig, opts ...Option) (*Controller, error) {
	if engine == nil {
		return nil, fmt.Errorf("railscan: engine is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		engine: engine,
		cfg:    cfg,
		runID:  uuid.New().String(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.outcome = Outcome{RunID: c.runID, Messages: make(map[string]uint64)}

	slog.Info("railscan: controller created",
		"run_id", c.runID,
		"uri", cfg.Source.URI,
		"resolution", fmt.Sprintf("%dx%d", cfg.Aggregator.Width, cfg.Aggregator.Height),
		"inference_config", cfg.Inference.ConfigFilePath,
		"sink", cfg.Sink.Plugin,
	)
	return c, nil
}

// RunID returns the identifier of this session.
func (c *Controller) RunID() string { return c.runID }

// Config returns the pipeline configuration.
func (c *Controller) Config() PipelineConfig { return c.cfg }

// State returns the current lifecycle state.
func (c *Controller) State() LifecycleState {
	return LifecycleState(c.state.Load())
}

func (c *Controller) setState(to LifecycleState) {
	from := LifecycleState(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	slog.Debug("railscan: lifecycle transition", "from", from.String(), "to", to.String())
	for _, o := range c.observers {
		o.OnState(from, to)
	}
}

// Build constructs and links the graph, entering StateReady.
func (c *Controller) Build() error {
	if c.State() != StateNull || c.graph != nil {
		return fmt.Errorf("%w: build requires %s, have %s", ErrInvalidState, StateNull, c.State())
	}

	g, err := BuildGraph(c.engine, c.cfg)
	if err != nil {
		return err
	}

	if len(c.observers) > 0 {
		c.installFrameProbe(g)
	}

	c.mu.Lock()
	c.graph = g
	c.mu.Unlock()

	c.setState(StateReady)
	slog.Info("railscan: pipeline built", "run_id", c.runID, "stages", len(g.Stages))
	return nil
}

// installFrameProbe counts buffers entering the overlay stage. Failure is
// not fatal: the pipeline runs without frame telemetry.
func (c *Controller) installFrameProbe(g *Graph) {
	osd, ok := g.Stage(KindOverlay)
	if !ok {
		return
	}
	pad, err := osd.Element.StaticPad("sink")
	if err != nil {
		slog.Warn("railscan: overlay sink pad unavailable, continuing without frame telemetry", "error", err)
		return
	}
	defer pad.Release()

	err = pad.OnBuffer(func() {
		now := time.Now()
		for _, o := range c.observers {
			o.OnFrame(now)
		}
	})
	if err != nil {
		slog.Warn("railscan: failed to install frame probe, continuing without frame telemetry", "error", err)
	}
}

// Play subscribes to the bus and requests the PLAYING state.
// A rejected request is returned as a TransitionError.
func (c *Controller) Play() error {
	if c.State() != StateReady {
		return fmt.Errorf("%w: play requires %s, have %s", ErrInvalidState, StateReady, c.State())
	}
	if c.interrupts.Load() > 0 {
		return ErrInterrupted
	}

	bus, err := c.graph.Pipeline.Bus()
	if err != nil {
		return fmt.Errorf("railscan: failed to subscribe to bus: %w", err)
	}
	// An interrupt racing with subscription either sees the bus or is seen here
	c.mu.Lock()
	c.bus = bus
	interrupted := c.interrupts.Load() > 0
	c.mu.Unlock()
	if interrupted {
		return ErrInterrupted
	}

	if err := c.graph.Pipeline.SetState(StatePlaying); err != nil {
		return &TransitionError{From: StateReady, To: StatePlaying, Err: err}
	}

	c.outcome.StartedAt = time.Now()
	c.setState(StatePlaying)
	fmt.Fprintln(c.stdout, "Pipeline is running...")
	slog.Info("railscan: pipeline playing", "run_id", c.runID, "pipeline", c.graph.Pipeline.Name())
	return nil
}

// Run blocks on the bus until end-of-stream or an error, then enters
// StateStopped. It returns the RuntimeError when the graph failed.
func (c *Controller) Run() (Outcome, error) {
	if c.State() != StatePlaying {
		return c.outcome, fmt.Errorf("%w: run requires %s, have %s", ErrInvalidState, StatePlaying, c.State())
	}

	for {
		msg := c.bus.Next()
		if c.handle(msg) {
			break
		}
	}

	c.outcome.StoppedAt = time.Now()
	c.setState(StateStopped)

	slog.Info("railscan: control loop finished",
		"run_id", c.runID,
		"reason", string(c.outcome.Reason),
		"uptime", c.outcome.StoppedAt.Sub(c.outcome.StartedAt),
		"warnings", c.outcome.Warnings,
	)

	if c.outcome.Err != nil {
		return c.outcome, c.outcome.Err
	}
	return c.outcome, nil
}

// handle processes one message and reports whether the loop must stop.
func (c *Controller) handle(msg ControlMessage) bool {
	c.outcome.Messages[msg.Kind.String()]++
	for _, o := range c.observers {
		o.OnMessage(msg)
	}

	switch msg.Kind {
	case MessageEndOfStream:
		fmt.Fprintln(c.stdout, "End of stream")
		c.outcome.Reason = StopEndOfStream
		if c.interrupts.Load() > 0 {
			c.outcome.Reason = StopInterrupt
		}
		slog.Info("railscan: end of stream received", "run_id", c.runID, "source", msg.Source)
		return true

	case MessageError:
		category := ClassifyError(msg.Text, msg.Debug)
		fmt.Fprintf(c.stderr, "ERROR from element %s: %s\n", msg.Source, msg.Text)
		fmt.Fprintf(c.stderr, "Debugging info: %s\n", msg.DebugInfo())

		rerr := &RuntimeError{
			Source:   msg.Source,
			Message:  msg.Text,
			Debug:    msg.Debug,
			Category: category,
		}
		for _, o := range c.observers {
			o.OnRuntimeError(rerr)
		}
		slog.Error("railscan: pipeline error",
			"run_id", c.runID,
			"element", msg.Source,
			"error", msg.Text,
			"debug", msg.DebugInfo(),
			"category", category.String(),
			"hint", category.Hint(),
		)
		c.outcome.Reason = StopError
		c.outcome.Err = rerr
		return true

	case MessageWarning:
		c.outcome.Warnings++
		slog.Warn("railscan: pipeline warning",
			"element", msg.Source,
			"warning", msg.Text,
			"debug", msg.DebugInfo(),
		)

	case MessageStateChanged:
		slog.Debug("railscan: element state changed", "element", msg.Source, "detail", msg.Text)
	}

	// Everything else is pass-through
	return false
}

// Interrupt asks a playing pipeline to stop. The first call injects an
// end-of-stream event so sinks can flush. Later calls, a refused event, or
// an interrupt that lands while PLAYING is still being requested post
// end-of-stream straight onto the bus. Safe from any goroutine.
func (c *Controller) Interrupt() {
	n := c.interrupts.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released || c.graph == nil || c.bus == nil {
		slog.Debug("railscan: interrupt ignored, pipeline not playing")
		return
	}

	// Before PLAYING the source has no pads to carry an event
	if n == 1 && c.State() == StatePlaying && c.graph.Pipeline.SendEndOfStream() {
		slog.Info("railscan: interrupt received, end-of-stream requested", "run_id", c.runID)
		return
	}

	c.bus.Post(EndOfStream(c.graph.Pipeline.Name()))
	slog.Warn("railscan: interrupt received, forcing end of stream", "run_id", c.runID, "interrupts", n)
}

// Teardown returns the engine to NULL and releases the bus and every
// stage handle. It must run exactly once; a second call returns
// ErrAlreadyReleased.
func (c *Controller) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrAlreadyReleased
	}
	c.released = true

	if c.State() == StatePlaying || c.State() == StateReady {
		c.setState(StateStopped)
	}

	var stateErr error
	if c.graph != nil {
		if err := c.graph.Pipeline.SetState(StateNull); err != nil {
			stateErr = fmt.Errorf("railscan: failed to set pipeline to NULL: %w", err)
			slog.Error("railscan: teardown state change failed", "error", err)
		}
	}
	if c.bus != nil {
		c.bus.Release()
		c.bus = nil
	}
	if c.graph != nil {
		c.graph.Pipeline.Release()
		c.graph = nil
	}

	slog.Info("railscan: pipeline released", "run_id", c.runID)
	return stateErr
}

// Execute runs the whole session: Build, Play, Run and Teardown. Teardown
// runs whenever Build was attempted, and the first error is returned.
func (c *Controller) Execute() (Outcome, error) {
	outcome, err := c.execute()
	if terr := c.Teardown(); terr != nil && err == nil {
		err = terr
	}
	return outcome, err
}

func (c *Controller) execute() (Outcome, error) {
	if err := c.Build(); err != nil {
		return c.outcome, err
	}
	if err := c.Play(); err != nil {
		return c.outcome, err
	}
	return c.Run()
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	RunID      string        `json:"run_id"`
	State      string        `json:"state"`
	URI        string        `json:"uri"`
	StartedAt  time.Time     `json:"started_at"`
	Uptime     time.Duration `json:"uptime_ns"`
	Interrupts uint32        `json:"interrupts"`
}

// Snapshot returns the current status. Safe from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		RunID:      c.runID,
		State:      c.State().String(),
		URI:        c.cfg.Source.URI,
		Interrupts: c.interrupts.Load(),
	}
	// StartedAt is written before the atomic switch to playing
	if c.State() == StatePlaying {
		s.StartedAt = c.outcome.StartedAt
		s.Uptime = time.Since(s.StartedAt)
	}
	return s
}
