// Package enginetest provides an in-memory railscan.Engine that records
// every call, for testing graph construction and the control loop without
// GStreamer.
package enginetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/e7canasta/railscan"
)

// ErrUnknownPlugin is returned by NewElement for plugins marked missing.
var ErrUnknownPlugin = errors.New("no such element factory")

// Engine is a scriptable fake media engine.
type Engine struct {
	mu sync.Mutex

	// MissingPlugins makes NewElement fail for these factory names
	MissingPlugins map[string]bool
	// RejectProperties makes SetProperty fail for "element/property" keys
	RejectProperties map[string]bool
	// RejectPadLink makes every pad-to-pad link fail (caps mismatch)
	RejectPadLink bool
	// NoStaticSrcPad makes StaticPad("src") fail on every element
	NoStaticSrcPad bool
	// RejectLinks makes Element.Link fail for "from->to" element-name keys
	RejectLinks map[string]bool
	// RejectPlaying makes SetState(StatePlaying) fail
	RejectPlaying bool
	// RefuseEndOfStream makes SendEndOfStream report false and post nothing
	RefuseEndOfStream bool
	// BeforePlaying runs inside SetState(StatePlaying) before it is applied
	BeforePlaying func()

	Pipelines []*Pipeline
	Elements  []*Element
	// Calls records every linking-related call in order
	Calls []string

	messages chan railscan.ControlMessage
	probes   []func()
}

// New returns a fake engine with a buffered message queue.
func New() *Engine {
	return &Engine{
		MissingPlugins:   map[string]bool{},
		RejectProperties: map[string]bool{},
		RejectLinks:      map[string]bool{},
		messages:         make(chan railscan.ControlMessage, 64),
	}
}

func (e *Engine) record(call string) {
	e.mu.Lock()
	e.Calls = append(e.Calls, call)
	e.mu.Unlock()
}

// CallLog returns a copy of the recorded calls.
func (e *Engine) CallLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Calls...)
}

// Emit queues a message for the running pipeline's bus.
func (e *Engine) Emit(msg railscan.ControlMessage) {
	e.messages <- msg
}

// Frames invokes every installed buffer probe n times.
func (e *Engine) Frames(n int) {
	e.mu.Lock()
	probes := append([]func(){}, e.probes...)
	e.mu.Unlock()
	for i := 0; i < n; i++ {
		for _, fn := range probes {
			fn()
		}
	}
}

// HasPlugin reports whether plugin is not marked missing.
func (e *Engine) HasPlugin(plugin string) bool {
	return !e.MissingPlugins[plugin]
}

// LastPipeline returns the most recently created pipeline, or nil.
func (e *Engine) LastPipeline() *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Pipelines) == 0 {
		return nil
	}
	return e.Pipelines[len(e.Pipelines)-1]
}

// NewPipeline implements railscan.Engine.
func (e *Engine) NewPipeline(name string) (railscan.Pipeline, error) {
	p := &Pipeline{engine: e, name: name}
	e.mu.Lock()
	e.Pipelines = append(e.Pipelines, p)
	e.mu.Unlock()
	return p, nil
}

// NewElement implements railscan.Engine.
func (e *Engine) NewElement(plugin, name string) (railscan.Element, error) {
	e.record("create " + name)
	if e.MissingPlugins[plugin] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, plugin)
	}
	el := &Element{engine: e, plugin: plugin, name: name, Props: map[string]any{}}
	e.mu.Lock()
	e.Elements = append(e.Elements, el)
	e.mu.Unlock()
	return el, nil
}

// Element is a fake stage handle.
type Element struct {
	engine *Engine
	plugin string
	name   string
	// Props holds every property assigned so far
	Props map[string]any
}

func (el *Element) Name() string { return el.name }

// Plugin returns the factory name the element was created from.
func (el *Element) Plugin() string { return el.plugin }

func (el *Element) SetProperty(name string, value any) error {
	if el.engine.RejectProperties[el.name+"/"+name] {
		return fmt.Errorf("property %s rejected", name)
	}
	el.engine.mu.Lock()
	el.Props[name] = value
	el.engine.mu.Unlock()
	return nil
}

func (el *Element) RequestPad(name string) (railscan.Pad, error) {
	el.engine.record("request " + el.name + "." + name)
	return &Pad{engine: el.engine, owner: el.name, name: name}, nil
}

func (el *Element) StaticPad(name string) (railscan.Pad, error) {
	if name == "src" && el.engine.NoStaticSrcPad {
		return nil, fmt.Errorf("element %s has no static pad %s", el.name, name)
	}
	el.engine.record("static " + el.name + "." + name)
	return &Pad{engine: el.engine, owner: el.name, name: name}, nil
}

func (el *Element) Link(next railscan.Element) error {
	key := el.name + "->" + next.Name()
	el.engine.record("link " + key)
	if el.engine.RejectLinks[key] {
		return fmt.Errorf("could not link %s", key)
	}
	return nil
}

// Pad is a fake pad handle.
type Pad struct {
	engine *Engine
	owner  string
	name   string
}

func (p *Pad) Name() string { return p.name }

func (p *Pad) Link(sink railscan.Pad) error {
	other := sink.(*Pad)
	p.engine.record("padlink " + p.owner + "." + p.name + "->" + other.owner + "." + other.name)
	if p.engine.RejectPadLink {
		return errors.New("pad link refused: noformat")
	}
	return nil
}

func (p *Pad) OnBuffer(fn func()) error {
	p.engine.mu.Lock()
	p.engine.probes = append(p.engine.probes, fn)
	p.engine.mu.Unlock()
	p.engine.record("probe " + p.owner + "." + p.name)
	return nil
}

func (p *Pad) Release() {}

// Pipeline is a fake container.
type Pipeline struct {
	engine *Engine
	name   string

	Added    []string
	States   []railscan.LifecycleState
	Released int
	bus      *Bus
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Add(elems ...railscan.Element) error {
	for _, el := range elems {
		p.Added = append(p.Added, el.Name())
	}
	p.engine.record("add")
	return nil
}

func (p *Pipeline) SetState(state railscan.LifecycleState) error {
	if state == railscan.StatePlaying && p.engine.BeforePlaying != nil {
		p.engine.BeforePlaying()
	}
	p.engine.mu.Lock()
	p.States = append(p.States, state)
	p.engine.mu.Unlock()
	if state == railscan.StatePlaying && p.engine.RejectPlaying {
		return errors.New("state change failure")
	}
	return nil
}

func (p *Pipeline) Bus() (railscan.Bus, error) {
	p.engine.mu.Lock()
	defer p.engine.mu.Unlock()
	if p.bus == nil {
		p.bus = &Bus{engine: p.engine}
	}
	return p.bus, nil
}

// MessageBus returns the bus handed out by Bus, or nil before subscription.
func (p *Pipeline) MessageBus() *Bus {
	p.engine.mu.Lock()
	defer p.engine.mu.Unlock()
	return p.bus
}

func (p *Pipeline) SendEndOfStream() bool {
	p.engine.record("send-eos")
	if p.engine.RefuseEndOfStream {
		return false
	}
	p.engine.messages <- railscan.EndOfStream(p.name)
	return true
}

func (p *Pipeline) Release() {
	p.engine.mu.Lock()
	p.Released++
	p.engine.mu.Unlock()
}

// ReleaseCount returns how many times the pipeline was released.
func (p *Pipeline) ReleaseCount() int {
	p.engine.mu.Lock()
	defer p.engine.mu.Unlock()
	return p.Released
}

// Bus is a fake message bus backed by the engine's queue.
type Bus struct {
	engine   *Engine
	Released int
	Posted   int
}

func (b *Bus) Next() railscan.ControlMessage {
	return <-b.engine.messages
}

func (b *Bus) Post(msg railscan.ControlMessage) bool {
	b.engine.mu.Lock()
	b.Posted++
	b.engine.mu.Unlock()
	b.engine.messages <- msg
	return true
}

func (b *Bus) Release() {
	b.engine.mu.Lock()
	b.Released++
	b.engine.mu.Unlock()
}
