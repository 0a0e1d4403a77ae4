package railscan

import (
	"fmt"
	"log/slog"
)

// Stage is a created and configured element together with its role.
type Stage struct {
	Kind    StageKind
	Name    string
	Plugin  string
	Element Element
}

// Graph is the fully built pipeline: every stage created, configured,
// added to the container and linked in declared order.
type Graph struct {
	Pipeline Pipeline
	Stages   []Stage
}

// Stage returns the stage of the given kind.
func (g *Graph) Stage(kind StageKind) (Stage, bool) {
	for _, st := range g.Stages {
		if st.Kind == kind {
			return st, true
		}
	}
	return Stage{}, false
}

// aggregatorSinkPad is the request pad the single source is attached to.
const aggregatorSinkPad = "sink_0"

// BuildGraph creates, configures and links the pipeline described by cfg.
//
// Order of operations:
//
//  1. create the container and every stage (StageCreationError on the first failure)
//  2. assign the typed properties of each stage (PropertyError)
//  3. hand every stage to the container
//  4. link source -> aggregator through a requested pad (LinkError)
//  5. link aggregator -> inference -> overlay -> sink (LinkError)
//
// Nothing is linked unless every stage was created. No step is retried.
// On failure the partially built pipeline is released.
func BuildGraph(engine Engine, cfg PipelineConfig) (*Graph, error) {
	pipeline, err := engine.NewPipeline(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("railscan: failed to create pipeline: %w", err)
	}

	g := &Graph{Pipeline: pipeline}
	if err := g.build(engine, cfg); err != nil {
		pipeline.Release()
		return nil, err
	}
	return g, nil
}

func (g *Graph) build(engine Engine, cfg PipelineConfig) error {
	stages := cfg.Stages()

	// Create every stage before touching any link
	for _, st := range stages {
		elem, err := engine.NewElement(st.Plugin, st.Name)
		if err != nil || elem == nil {
			return &StageCreationError{Kind: st.Kind, Plugin: st.Plugin, Err: err}
		}
		g.Stages = append(g.Stages, Stage{
			Kind:    st.Kind,
			Name:    st.Name,
			Plugin:  st.Plugin,
			Element: elem,
		})
		slog.Debug("railscan: stage created", "kind", st.Kind.String(), "plugin", st.Plugin, "name", st.Name)
	}

	for i, st := range stages {
		elem := g.Stages[i].Element
		for _, prop := range st.Properties {
			if err := elem.SetProperty(prop.Name, prop.Value); err != nil {
				return &PropertyError{Kind: st.Kind, Property: prop.Name, Err: err}
			}
		}
	}

	elems := make([]Element, 0, len(g.Stages))
	for _, st := range g.Stages {
		elems = append(elems, st.Element)
	}
	if err := g.Pipeline.Add(elems...); err != nil {
		return fmt.Errorf("railscan: failed to add stages to pipeline: %w", err)
	}

	if err := g.linkSource(); err != nil {
		return err
	}

	for i := 1; i < len(g.Stages)-1; i++ {
		from, to := g.Stages[i], g.Stages[i+1]
		if err := from.Element.Link(to.Element); err != nil {
			return &LinkError{From: from.Kind, To: to.Kind, Err: err}
		}
		slog.Debug("railscan: stages linked", "from", from.Kind.String(), "to", to.Kind.String())
	}

	return nil
}

// linkSource attaches the source's static "src" pad to a freshly requested
// aggregator input pad.
func (g *Graph) linkSource() error {
	src, agg := g.Stages[0], g.Stages[1]

	sinkPad, err := agg.Element.RequestPad(aggregatorSinkPad)
	if err != nil {
		return &LinkError{From: src.Kind, To: agg.Kind, Err: fmt.Errorf("request pad %s: %w", aggregatorSinkPad, err)}
	}
	defer sinkPad.Release()

	srcPad, err := src.Element.StaticPad("src")
	if err != nil {
		return &LinkError{From: src.Kind, To: agg.Kind, Err: fmt.Errorf("static pad src: %w", err)}
	}
	defer srcPad.Release()

	if err := srcPad.Link(sinkPad); err != nil {
		return &LinkError{From: src.Kind, To: agg.Kind, Err: err}
	}

	slog.Debug("railscan: source linked to aggregator",
		"src_pad", srcPad.Name(),
		"sink_pad", sinkPad.Name(),
	)
	return nil
}
