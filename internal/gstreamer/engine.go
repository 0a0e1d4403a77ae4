// Package gstreamer implements railscan.Engine on top of GStreamer through
// go-gst. Every DeepStream plugin is loaded by factory name at runtime, so
// nothing here is specific to a plugin set.
package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/railscan"
	"github.com/tinyzimmer/go-gst/gst"
)

var initOnce sync.Once

// Engine creates GStreamer pipelines and elements.
type Engine struct{}

// New initializes GStreamer (once per process) and returns an engine.
func New() *Engine {
	initOnce.Do(func() {
		gst.Init(nil)
		slog.Debug("gstreamer: initialized")
	})
	return &Engine{}
}

// CheckAvailable verifies that GStreamer works by creating a trivial element.
func (e *Engine) CheckAvailable() error {
	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

// HasPlugin reports whether a factory with this name is registered.
func (e *Engine) HasPlugin(plugin string) bool {
	return gst.Find(plugin) != nil
}

// NewPipeline implements railscan.Engine.
func (e *Engine) NewPipeline(name string) (railscan.Pipeline, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return &Pipeline{pipeline: p}, nil
}

// NewElement implements railscan.Engine.
func (e *Engine) NewElement(plugin, name string) (railscan.Element, error) {
	elem, err := gst.NewElementWithName(plugin, name)
	if err != nil {
		return nil, err
	}
	if elem == nil {
		return nil, fmt.Errorf("factory %q returned no element", plugin)
	}
	return &Element{elem: elem}, nil
}

// Element wraps a *gst.Element.
type Element struct {
	elem *gst.Element
}

func (e *Element) Name() string { return e.elem.GetName() }

func (e *Element) SetProperty(name string, value any) error {
	return e.elem.SetProperty(name, value)
}

func (e *Element) RequestPad(name string) (railscan.Pad, error) {
	pad := e.elem.GetRequestPad(name)
	if pad == nil {
		return nil, fmt.Errorf("element %s has no request pad %s", e.Name(), name)
	}
	return &Pad{pad: pad}, nil
}

func (e *Element) StaticPad(name string) (railscan.Pad, error) {
	pad := e.elem.GetStaticPad(name)
	if pad == nil {
		return nil, fmt.Errorf("element %s has no static pad %s", e.Name(), name)
	}
	return &Pad{pad: pad}, nil
}

func (e *Element) Link(next railscan.Element) error {
	other, ok := next.(*Element)
	if !ok {
		return fmt.Errorf("cannot link %s to foreign element %T", e.Name(), next)
	}
	return e.elem.Link(other.elem)
}

// Pad wraps a *gst.Pad.
type Pad struct {
	pad *gst.Pad
}

func (p *Pad) Name() string {
	if p.pad == nil {
		return ""
	}
	return p.pad.GetName()
}

func (p *Pad) Link(sink railscan.Pad) error {
	other, ok := sink.(*Pad)
	if !ok || other.pad == nil || p.pad == nil {
		return errors.New("cannot link released or foreign pad")
	}
	if ret := p.pad.Link(other.pad); ret != gst.PadLinkOK {
		return fmt.Errorf("pad link %s -> %s refused: %s", p.Name(), other.Name(), ret.String())
	}
	return nil
}

// OnBuffer installs a buffer probe. The probe never drops or blocks buffers.
func (p *Pad) OnBuffer(fn func()) error {
	if p.pad == nil {
		return errors.New("pad released")
	}
	p.pad.AddProbe(gst.PadProbeTypeBuffer, func(pad *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		if info.GetBuffer() != nil {
			fn()
		}
		return gst.PadProbeOK
	})
	slog.Debug("gstreamer: buffer probe installed", "pad", p.Name())
	return nil
}

// Release drops the Go handle; go-gst unrefs the pad when it is collected.
func (p *Pad) Release() {
	p.pad = nil
}
