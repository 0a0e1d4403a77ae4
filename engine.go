package railscan

// Engine is the media framework the pipeline is built on.
//
// The production implementation lives in internal/gstreamer; tests use
// the in-memory fake from internal/enginetest.
type Engine interface {
	// NewPipeline creates an empty top-level container.
	NewPipeline(name string) (Pipeline, error)
	// NewElement instantiates a plugin by factory name. It fails when the
	// factory is unknown or cannot produce an instance.
	NewElement(plugin, name string) (Element, error)
}

// Element is a handle to one instantiated plugin.
type Element interface {
	Name() string
	SetProperty(name string, value any) error
	// RequestPad asks the element for a new on-request pad from a template
	// such as "sink_0".
	RequestPad(name string) (Pad, error)
	// StaticPad returns an always-present pad such as "src".
	StaticPad(name string) (Pad, error)
	// Link connects this element's source to next's sink, negotiating pads.
	Link(next Element) error
}

// Pad is a named connection point on an element.
type Pad interface {
	Name() string
	// Link connects this (source) pad to sink. It fails on incompatible caps.
	Link(sink Pad) error
	// OnBuffer installs fn as a buffer probe. fn runs on engine streaming
	// threads and must be safe for concurrent use.
	OnBuffer(fn func()) error
	// Release drops the handle to the pad.
	Release()
}

// Pipeline is the ownership container of all stages.
type Pipeline interface {
	Name() string
	// Add transfers ownership of the elements to the pipeline.
	Add(elems ...Element) error
	// SetState requests an engine state. Only StatePlaying and StateNull are
	// requested by the controller.
	SetState(state LifecycleState) error
	// Bus subscribes to the pipeline's message bus.
	Bus() (Bus, error)
	// SendEndOfStream injects an end-of-stream event at the sources.
	// It reports whether the event was accepted.
	SendEndOfStream() bool
	// Release drops the pipeline and the stages it owns.
	Release()
}

// Bus delivers ControlMessages posted by the running pipeline.
type Bus interface {
	// Next blocks until the next message is available.
	Next() ControlMessage
	// Post injects a message, used to unblock Next on operator interrupt.
	Post(msg ControlMessage) bool
	// Release drops the subscription.
	Release()
}
