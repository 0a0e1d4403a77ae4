package railscan

import "fmt"

// StageKind identifies the role of a stage in the fixed pipeline topology.
type StageKind int

const (
	// KindSource produces encoded frames from a URI
	KindSource StageKind = iota
	// KindAggregator batches one or more streams to a uniform resolution
	KindAggregator
	// KindInference runs the configured model over each batch
	KindInference
	// KindOverlay draws detection metadata onto frames
	KindOverlay
	// KindSink presents frames on a display surface
	KindSink
)

// String returns a human-readable string representation of the stage kind
func (k StageKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindAggregator:
		return "aggregator"
	case KindInference:
		return "inference"
	case KindOverlay:
		return "overlay"
	case KindSink:
		return "sink"
	default:
		return fmt.Sprintf("stage(%d)", int(k))
	}
}

// StageOrder is the declared link order of the pipeline.
var StageOrder = []StageKind{KindSource, KindAggregator, KindInference, KindOverlay, KindSink}

// LifecycleState is the controller-visible state of the pipeline.
//
// Sub-states owned by the media engine (PAUSED, buffering) are never
// surfaced here.
type LifecycleState int

const (
	// StateNull means the graph exists but is not (fully) built
	StateNull LifecycleState = iota
	// StateReady means every stage is created, configured and linked
	StateReady
	// StatePlaying means the engine accepted the PLAYING request
	StatePlaying
	// StateStopped means the control loop observed a terminal condition
	StateStopped
)

// String returns a human-readable string representation of the state
func (s LifecycleState) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MessageKind tags a ControlMessage.
type MessageKind int

const (
	// MessageOther is any engine message this package does not interpret
	MessageOther MessageKind = iota
	// MessageEndOfStream signals that every sink received EOS
	MessageEndOfStream
	// MessageError is a fatal asynchronous failure
	MessageError
	// MessageWarning is a non-fatal asynchronous problem
	MessageWarning
	// MessageStateChanged reports an element state transition
	MessageStateChanged
)

// String returns a human-readable string representation of the message kind
func (k MessageKind) String() string {
	switch k {
	case MessageEndOfStream:
		return "eos"
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageStateChanged:
		return "state_changed"
	default:
		return "other"
	}
}

// ControlMessage is one asynchronous notification popped from the pipeline bus.
type ControlMessage struct {
	// Kind selects which of the fields below are meaningful
	Kind MessageKind
	// Source is the name of the element that posted the message
	Source string
	// Text is the human-readable error or warning message
	Text string
	// Debug is the optional debug string attached to errors and warnings
	Debug string
	// HasDebug is false when the engine attached no debug string at all
	HasDebug bool
	// Type is the engine's own name for the message type (used for MessageOther)
	Type string
}

// DebugInfo returns the debug string, or "none" when the engine sent none.
func (m ControlMessage) DebugInfo() string {
	if !m.HasDebug || m.Debug == "" {
		return "none"
	}
	return m.Debug
}

// EndOfStream builds an end-of-stream message.
func EndOfStream(source string) ControlMessage {
	return ControlMessage{Kind: MessageEndOfStream, Source: source, Type: "eos"}
}

// ErrorMessage builds an error message. An empty debug string is treated
// as absent.
func ErrorMessage(source, text, debug string) ControlMessage {
	return ControlMessage{
		Kind:     MessageError,
		Source:   source,
		Text:     text,
		Debug:    debug,
		HasDebug: debug != "",
		Type:     "error",
	}
}

// WarningMessage builds a warning message.
func WarningMessage(source, text, debug string) ControlMessage {
	return ControlMessage{
		Kind:     MessageWarning,
		Source:   source,
		Text:     text,
		Debug:    debug,
		HasDebug: debug != "",
		Type:     "warning",
	}
}
