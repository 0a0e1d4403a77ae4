package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/railscan"
	"github.com/tinyzimmer/go-gst/gst"
)

// Pipeline wraps a *gst.Pipeline.
type Pipeline struct {
	pipeline *gst.Pipeline
}

func (p *Pipeline) Name() string { return p.pipeline.GetName() }

func (p *Pipeline) Add(elems ...railscan.Element) error {
	raw := make([]*gst.Element, 0, len(elems))
	for _, e := range elems {
		el, ok := e.(*Element)
		if !ok {
			return fmt.Errorf("cannot add foreign element %T", e)
		}
		raw = append(raw, el.elem)
	}
	return p.pipeline.AddMany(raw...)
}

// SetState maps lifecycle states onto GStreamer states. Stopped maps to NULL.
func (p *Pipeline) SetState(state railscan.LifecycleState) error {
	var target gst.State
	switch state {
	case railscan.StateNull, railscan.StateStopped:
		target = gst.StateNull
	case railscan.StateReady:
		target = gst.StateReady
	case railscan.StatePlaying:
		target = gst.StatePlaying
	default:
		return fmt.Errorf("unsupported lifecycle state %s", state)
	}
	if err := p.pipeline.SetState(target); err != nil {
		return fmt.Errorf("set state %s: %w", target, err)
	}
	return nil
}

func (p *Pipeline) Bus() (railscan.Bus, error) {
	bus := p.pipeline.GetPipelineBus()
	if bus == nil {
		return nil, errors.New("pipeline has no bus")
	}
	return &Bus{bus: bus, pipeline: p.pipeline}, nil
}

func (p *Pipeline) SendEndOfStream() bool {
	return p.pipeline.SendEvent(gst.NewEOSEvent())
}

// Release drops the pipeline handle. The pipeline owns every element added
// to it, so this releases the stages too once go-gst finalizes the object.
func (p *Pipeline) Release() {
	p.pipeline = nil
}

// Bus wraps the pipeline bus.
type Bus struct {
	bus      *gst.Bus
	pipeline *gst.Pipeline
}

// Next blocks until a message is posted. A nil pop means the bus was
// flushed underneath the loop, which is reported as an error.
func (b *Bus) Next() railscan.ControlMessage {
	msg := b.bus.BlockPopMessage()
	if msg == nil {
		return railscan.ErrorMessage(b.pipeline.GetName(), "message bus closed", "")
	}
	return convertMessage(msg)
}

// Post injects a message onto the bus. Only end-of-stream is supported,
// since that is what the controller posts on a forced interrupt.
func (b *Bus) Post(msg railscan.ControlMessage) bool {
	if msg.Kind != railscan.MessageEndOfStream {
		slog.Warn("gstreamer: refusing to post non-EOS message", "kind", msg.Kind.String())
		return false
	}
	return b.bus.Post(gst.NewEOSMessage(b.pipeline))
}

func (b *Bus) Release() {
	b.bus = nil
}

// convertMessage maps a GStreamer message onto a ControlMessage.
func convertMessage(msg *gst.Message) railscan.ControlMessage {
	switch msg.Type() {
	case gst.MessageEOS:
		return railscan.EndOfStream(msg.Source())

	case gst.MessageError:
		gerr := msg.ParseError()
		if gerr == nil {
			return railscan.ErrorMessage(msg.Source(), "unknown error", "")
		}
		return railscan.ErrorMessage(msg.Source(), gerr.Error(), gerr.DebugString())

	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		if gerr == nil {
			return railscan.WarningMessage(msg.Source(), "unknown warning", "")
		}
		return railscan.WarningMessage(msg.Source(), gerr.Error(), gerr.DebugString())

	case gst.MessageStateChanged:
		oldState, newState := msg.ParseStateChanged()
		return railscan.ControlMessage{
			Kind:   railscan.MessageStateChanged,
			Source: msg.Source(),
			Text:   fmt.Sprintf("%s -> %s", oldState, newState),
			Type:   msg.Type().String(),
		}

	default:
		return railscan.ControlMessage{
			Kind:   railscan.MessageOther,
			Source: msg.Source(),
			Type:   msg.Type().String(),
		}
	}
}
