package railscan

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Default plugin factory names for each stage.
const (
	DefaultSourcePlugin     = "nvurisrcbin"
	DefaultAggregatorPlugin = "nvstreammux"
	DefaultInferencePlugin  = "nvinfer"
	DefaultOverlayPlugin    = "nvdsosd"
	DefaultSinkPlugin       = "nveglglessink"
)

// Property is a single typed key/value assignment applied to a created stage.
type Property struct {
	Name  string
	Value any
}

// SourceConfig configures the URI source stage.
type SourceConfig struct {
	// Plugin is the factory name (default nvurisrcbin)
	Plugin string `yaml:"plugin"`
	// URI is the media location, e.g. file:///data/clip.mp4 or rtsp://...
	URI string `yaml:"uri"`
	// GPUID selects the decoding GPU
	GPUID uint `yaml:"gpu_id"`
}

func (c SourceConfig) properties() []Property {
	return []Property{
		{Name: "uri", Value: c.URI},
		{Name: "gpu-id", Value: c.GPUID},
	}
}

// AggregatorConfig configures the batching stage.
type AggregatorConfig struct {
	// Plugin is the factory name (default nvstreammux)
	Plugin string `yaml:"plugin"`
	// Width of the batched output in pixels
	Width int `yaml:"width"`
	// Height of the batched output in pixels
	Height int `yaml:"height"`
	// BatchSize is the number of frames per batch
	BatchSize uint `yaml:"batch_size"`
	// BatchedPushTimeout is how long to wait for a full batch, in microseconds
	BatchedPushTimeout int `yaml:"batched_push_timeout"`
	// LiveSource must be true for live (camera/RTSP) inputs
	LiveSource bool `yaml:"live_source"`
	// EnablePadding keeps aspect ratio by adding black borders
	EnablePadding bool `yaml:"enable_padding"`
	// MemoryType is the NvBufSurface memory type
	MemoryType int `yaml:"memory_type"`
	// GPUID selects the GPU
	GPUID uint `yaml:"gpu_id"`
}

func (c AggregatorConfig) properties() []Property {
	return []Property{
		{Name: "width", Value: c.Width},
		{Name: "height", Value: c.Height},
		{Name: "batch-size", Value: c.BatchSize},
		{Name: "batched-push-timeout", Value: c.BatchedPushTimeout},
		{Name: "live-source", Value: c.LiveSource},
		{Name: "enable-padding", Value: c.EnablePadding},
		{Name: "nvbuf-memory-type", Value: c.MemoryType},
		{Name: "gpu-id", Value: c.GPUID},
	}
}

// InferenceConfig configures the primary inference stage.
type InferenceConfig struct {
	// Plugin is the factory name (default nvinfer)
	Plugin string `yaml:"plugin"`
	// ConfigFilePath points at the inference engine's own text config
	ConfigFilePath string `yaml:"config_file_path"`
	// UniqueID tags the metadata this stage attaches
	UniqueID uint `yaml:"unique_id"`
	// GPUID selects the GPU
	GPUID uint `yaml:"gpu_id"`
	// MemoryType is the NvBufSurface memory type
	MemoryType int `yaml:"memory_type"`
	// Interval is the number of batches to skip between inferences (0 = every batch)
	Interval int `yaml:"interval"`
}

func (c InferenceConfig) properties() []Property {
	props := []Property{
		{Name: "config-file-path", Value: c.ConfigFilePath},
		{Name: "unique-id", Value: c.UniqueID},
		{Name: "gpu-id", Value: c.GPUID},
		{Name: "nvbuf-memory-type", Value: c.MemoryType},
	}
	if c.Interval > 0 {
		props = append(props, Property{Name: "interval", Value: c.Interval})
	}
	return props
}

// OverlayConfig configures the on-screen display stage.
type OverlayConfig struct {
	// Plugin is the factory name (default nvdsosd)
	Plugin string `yaml:"plugin"`
	// GPUID selects the GPU
	GPUID uint `yaml:"gpu_id"`
	// BorderWidth of the bounding boxes in pixels
	BorderWidth int `yaml:"border_width"`
	// TextSize of the labels
	TextSize int `yaml:"text_size"`
	// TextColor as "r;g;b;a" with components in [0,1]
	TextColor string `yaml:"text_color"`
	// TextBackgroundColor as "r;g;b;a" with components in [0,1]
	TextBackgroundColor string `yaml:"text_bg_color"`
	// Font family name
	Font string `yaml:"font"`
	// ShowClock draws a wall clock on each frame
	ShowClock bool `yaml:"show_clock"`
	// MemoryType is the NvBufSurface memory type
	MemoryType int `yaml:"memory_type"`
}

func (c OverlayConfig) properties() []Property {
	return []Property{
		{Name: "gpu-id", Value: c.GPUID},
		{Name: "border-width", Value: c.BorderWidth},
		{Name: "text-size", Value: c.TextSize},
		{Name: "text-color", Value: c.TextColor},
		{Name: "text-bg-color", Value: c.TextBackgroundColor},
		{Name: "font", Value: c.Font},
		{Name: "show-clock", Value: c.ShowClock},
		{Name: "nvbuf-memory-type", Value: c.MemoryType},
	}
}

// SinkConfig configures the render stage.
type SinkConfig struct {
	// Plugin is the factory name (default nveglglessink)
	Plugin string `yaml:"plugin"`
	// Sync renders against the pipeline clock
	Sync bool `yaml:"sync"`
	// GPUID selects the GPU
	GPUID uint `yaml:"gpu_id"`
	// MemoryType is the NvBufSurface memory type
	MemoryType int `yaml:"memory_type"`
}

func (c SinkConfig) properties() []Property {
	return []Property{
		{Name: "sync", Value: c.Sync},
		{Name: "gpu-id", Value: c.GPUID},
		{Name: "nvbuf-memory-type", Value: c.MemoryType},
	}
}

// PipelineConfig is the static configuration of the whole graph.
type PipelineConfig struct {
	// Name of the pipeline container
	Name       string           `yaml:"name"`
	Source     SourceConfig     `yaml:"source"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Inference  InferenceConfig  `yaml:"inference"`
	Overlay    OverlayConfig    `yaml:"overlay"`
	Sink       SinkConfig       `yaml:"sink"`
}

// DefaultPipelineConfig returns the reference single-stream configuration.
// Source.URI and Inference.ConfigFilePath are left empty and must be set.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Name:   "deepstream-pipeline",
		Source: SourceConfig{Plugin: DefaultSourcePlugin},
		Aggregator: AggregatorConfig{
			Plugin:             DefaultAggregatorPlugin,
			Width:              1280,
			Height:             720,
			BatchSize:          1,
			BatchedPushTimeout: 40000,
		},
		Inference: InferenceConfig{
			Plugin:   DefaultInferencePlugin,
			UniqueID: 1,
		},
		Overlay: OverlayConfig{
			Plugin:              DefaultOverlayPlugin,
			BorderWidth:         5,
			TextSize:            15,
			TextColor:           "1;1;1;1",
			TextBackgroundColor: "0.3;0.3;0.3;1",
			Font:                "Serif",
		},
		Sink: SinkConfig{Plugin: DefaultSinkPlugin},
	}
}

// StageSpec is the resolved, engine-neutral description of one stage.
type StageSpec struct {
	Kind       StageKind
	Name       string
	Plugin     string
	Properties []Property
}

// Stages resolves the configuration into the declared stage order.
func (c PipelineConfig) Stages() []StageSpec {
	return []StageSpec{
		{Kind: KindSource, Name: "source", Plugin: c.Source.Plugin, Properties: c.Source.properties()},
		{Kind: KindAggregator, Name: "streammux", Plugin: c.Aggregator.Plugin, Properties: c.Aggregator.properties()},
		{Kind: KindInference, Name: "primary-inference", Plugin: c.Inference.Plugin, Properties: c.Inference.properties()},
		{Kind: KindOverlay, Name: "osd", Plugin: c.Overlay.Plugin, Properties: c.Overlay.properties()},
		{Kind: KindSink, Name: "sink", Plugin: c.Sink.Plugin, Properties: c.Sink.properties()},
	}
}

// Validate checks the configuration for values the engine would only
// reject later, at property-set or negotiation time.
func (c PipelineConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Source.URI) == "" {
		errs = append(errs, errors.New("source.uri is required"))
	} else if !strings.Contains(c.Source.URI, "://") {
		errs = append(errs, fmt.Errorf("source.uri %q is not a URI (missing scheme)", c.Source.URI))
	}
	if c.Aggregator.Width <= 0 || c.Aggregator.Height <= 0 {
		errs = append(errs, fmt.Errorf("aggregator resolution %dx%d must be positive",
			c.Aggregator.Width, c.Aggregator.Height))
	}
	if c.Aggregator.BatchSize == 0 {
		errs = append(errs, errors.New("aggregator.batch_size must be at least 1"))
	}
	if c.Aggregator.BatchedPushTimeout < -1 {
		errs = append(errs, fmt.Errorf("aggregator.batched_push_timeout %d must be -1 or greater",
			c.Aggregator.BatchedPushTimeout))
	}
	if strings.TrimSpace(c.Inference.ConfigFilePath) == "" {
		errs = append(errs, errors.New("inference.config_file_path is required"))
	}
	if c.Inference.Interval < 0 {
		errs = append(errs, fmt.Errorf("inference.interval %d must not be negative", c.Inference.Interval))
	}
	for _, color := range []struct{ field, value string }{
		{"overlay.text_color", c.Overlay.TextColor},
		{"overlay.text_bg_color", c.Overlay.TextBackgroundColor},
	} {
		if err := validateColor(color.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", color.field, err))
		}
	}
	for _, st := range c.Stages() {
		if strings.TrimSpace(st.Plugin) == "" {
			errs = append(errs, fmt.Errorf("%s plugin name is required", st.Kind))
		}
	}

	if len(errs) > 0 {
		return &ConfigError{Err: errors.Join(errs...)}
	}
	return nil
}

// validateColor checks the "r;g;b;a" notation used by the overlay plugin.
func validateColor(s string) error {
	parts := strings.Split(s, ";")
	if len(parts) != 4 {
		return fmt.Errorf("color %q must have 4 components r;g;b;a", s)
	}
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) {
			return fmt.Errorf("color %q: component %q is not a number", s, p)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("color %q: component %q out of range [0,1]", s, p)
		}
	}
	return nil
}
