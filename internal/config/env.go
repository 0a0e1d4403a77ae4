package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAILSCAN_"

type lookupFunc func(key string) (string, bool)

// envBinding maps one variable onto the configuration.
type envBinding struct {
	key   string
	apply func(cfg *AppConfig, value string) error
}

var envBindings = []envBinding{
	{"SOURCE_URI", func(c *AppConfig, v string) error { c.Pipeline.Source.URI = v; return nil }},
	{"INFER_CONFIG", func(c *AppConfig, v string) error { c.Pipeline.Inference.ConfigFilePath = v; return nil }},
	{"INFER_INTERVAL", func(c *AppConfig, v string) error {
		return parseInt(v, &c.Pipeline.Inference.Interval)
	}},
	{"GPU_ID", func(c *AppConfig, v string) error {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid GPU id %q", v)
		}
		p := &c.Pipeline
		p.Source.GPUID = uint(id)
		p.Aggregator.GPUID = uint(id)
		p.Inference.GPUID = uint(id)
		p.Overlay.GPUID = uint(id)
		p.Sink.GPUID = uint(id)
		return nil
	}},
	{"MUX_WIDTH", func(c *AppConfig, v string) error { return parseInt(v, &c.Pipeline.Aggregator.Width) }},
	{"MUX_HEIGHT", func(c *AppConfig, v string) error { return parseInt(v, &c.Pipeline.Aggregator.Height) }},
	{"LIVE_SOURCE", func(c *AppConfig, v string) error { return parseBool(v, &c.Pipeline.Aggregator.LiveSource) }},
	{"SINK", func(c *AppConfig, v string) error { c.Pipeline.Sink.Plugin = v; return nil }},
	{"SINK_SYNC", func(c *AppConfig, v string) error { return parseBool(v, &c.Pipeline.Sink.Sync) }},
	{"METRICS_ADDR", func(c *AppConfig, v string) error { c.MetricsAddr = v; return nil }},
	{"REPORT_DIR", func(c *AppConfig, v string) error { c.ReportDir = v; return nil }},
	{"STATS_INTERVAL", func(c *AppConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		c.StatsInterval = d
		return nil
	}},
	{"DEBUG", func(c *AppConfig, v string) error { return parseBool(v, &c.Debug) }},
}

// EnvKeys lists every recognized variable name.
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = EnvPrefix + b.key
	}
	return keys
}

// applyEnv applies every set, non-empty variable. Malformed values are
// errors rather than silently ignored.
func applyEnv(cfg *AppConfig, lookup lookupFunc) error {
	var errs []error
	for _, b := range envBindings {
		key := EnvPrefix + b.key
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(cfg, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		slog.Debug("config: using environment variable", "key", key, "source", "environment")
	}
	return errors.Join(errs...)
}

func parseInt(v string, dst *int) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q", v)
	}
	*dst = i
	return nil
}

// parseBool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func parseBool(v string, dst *bool) error {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		return fmt.Errorf("invalid boolean %q", v)
	}
	return nil
}
