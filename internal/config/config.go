// Package config loads the railscan configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, then
// RAILSCAN_* environment variables. Command-line flags are applied by the
// caller on top of the loaded result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/e7canasta/railscan"
	"gopkg.in/yaml.v3"
)

// DefaultStatsInterval is how often throughput is logged while playing.
const DefaultStatsInterval = 15 * time.Second

// AppConfig is the complete process configuration.
type AppConfig struct {
	Pipeline railscan.PipelineConfig `yaml:"pipeline"`
	// MetricsAddr enables the status server when non-empty (e.g. ":9108")
	MetricsAddr string `yaml:"metrics_addr"`
	// ReportDir enables session reports when non-empty
	ReportDir string `yaml:"report_dir"`
	// StatsInterval is the throughput log period; 0 disables periodic logs
	StatsInterval time.Duration `yaml:"stats_interval"`
	Debug         bool          `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		Pipeline:      railscan.DefaultPipelineConfig(),
		StatsInterval: DefaultStatsInterval,
	}
}

// Load builds the configuration from defaults, the optional file at path
// and the environment. It does not validate; call Validate once flags
// have been applied.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, &railscan.ConfigError{Err: fmt.Errorf("%s: %w", path, err)}
		}
		slog.Debug("config: loaded file", "path", path)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, &railscan.ConfigError{Err: err}
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format %q (only YAML supported)", ext)
	}

	// #nosec G304 -- the operator chooses the config path
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// Validate checks the pipeline configuration and that the inference
// config file exists.
func Validate(cfg AppConfig) error {
	if err := cfg.Pipeline.Validate(); err != nil {
		return err
	}

	var errs []error
	if p := cfg.Pipeline.Inference.ConfigFilePath; p != "" {
		info, err := os.Stat(p)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("inference.config_file_path: %w", err))
		case info.IsDir():
			errs = append(errs, fmt.Errorf("inference.config_file_path %s is a directory", p))
		}
	}
	if cfg.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("stats_interval %s must not be negative", cfg.StatsInterval))
	}
	if len(errs) > 0 {
		return &railscan.ConfigError{Err: errors.Join(errs...)}
	}
	return nil
}

// Marshal renders the configuration as YAML.
func Marshal(cfg AppConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
