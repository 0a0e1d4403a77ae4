package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/railscan"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range EnvKeys() {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "railscan.yaml", `
pipeline:
  source:
    uri: file:///data/railway.mp4
  aggregator:
    width: 640
    height: 640
  inference:
    config_file_path: /models/config_infer_primary_yoloV11.txt
    interval: 2
  sink:
    plugin: fakesink
metrics_addr: ":9108"
stats_interval: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Pipeline.Source.URI = "file:///data/railway.mp4"
	want.Pipeline.Aggregator.Width = 640
	want.Pipeline.Aggregator.Height = 640
	want.Pipeline.Inference.ConfigFilePath = "/models/config_infer_primary_yoloV11.txt"
	want.Pipeline.Inference.Interval = 2
	want.Pipeline.Sink.Plugin = "fakesink"
	want.MetricsAddr = ":9108"
	want.StatsInterval = 30 * time.Second

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "railscan.yml", `
pipeline:
  source:
    uri: file:///from/file.mp4
  aggregator:
    live_source: false
`)
	t.Setenv("RAILSCAN_SOURCE_URI", "rtsp://camera.local/stream")
	t.Setenv("RAILSCAN_LIVE_SOURCE", "yes")
	t.Setenv("RAILSCAN_GPU_ID", "1")
	t.Setenv("RAILSCAN_REPORT_DIR", "/var/lib/railscan")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rtsp://camera.local/stream", cfg.Pipeline.Source.URI)
	assert.True(t, cfg.Pipeline.Aggregator.LiveSource)
	assert.Equal(t, "/var/lib/railscan", cfg.ReportDir)
	for _, id := range []uint{
		cfg.Pipeline.Source.GPUID,
		cfg.Pipeline.Aggregator.GPUID,
		cfg.Pipeline.Inference.GPUID,
		cfg.Pipeline.Overlay.GPUID,
		cfg.Pipeline.Sink.GPUID,
	} {
		assert.Equal(t, uint(1), id)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown field",
			file:    "bad.yaml",
			content: "pipeline:\n  source:\n    url: file:///typo.mp4\n",
			wantErr: "field url not found",
		},
		{
			name:    "not yaml extension",
			file:    "railscan.json",
			content: "{}",
			wantErr: "only YAML supported",
		},
		{
			name:    "multiple documents",
			file:    "multi.yaml",
			content: "debug: true\n---\ndebug: false\n",
			wantErr: "multiple documents",
		},
		{
			name:    "bad env integer",
			env:     map[string]string{"RAILSCAN_MUX_WIDTH": "wide"},
			wantErr: "RAILSCAN_MUX_WIDTH",
		},
		{
			name:    "bad env bool",
			env:     map[string]string{"RAILSCAN_LIVE_SOURCE": "maybe"},
			wantErr: "invalid boolean",
		},
		{
			name:    "bad env duration",
			env:     map[string]string{"RAILSCAN_STATS_INTERVAL": "soon"},
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, dir, tt.file, tt.content)
			}

			_, err := Load(path)
			require.Error(t, err)
			var cerr *railscan.ConfigError
			assert.True(t, errors.As(err, &cerr), "expected ConfigError, got %T", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "empty.yaml", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	inferCfg := writeFile(t, dir, "config_infer.txt", "[property]\n")

	valid := Default()
	valid.Pipeline.Source.URI = "file:///clip.mp4"
	valid.Pipeline.Inference.ConfigFilePath = inferCfg
	require.NoError(t, Validate(valid))

	t.Run("missing inference config file", func(t *testing.T) {
		cfg := valid
		cfg.Pipeline.Inference.ConfigFilePath = filepath.Join(dir, "missing.txt")
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inference.config_file_path")
	})

	t.Run("inference config is a directory", func(t *testing.T) {
		cfg := valid
		cfg.Pipeline.Inference.ConfigFilePath = dir
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})

	t.Run("pipeline errors come first", func(t *testing.T) {
		cfg := valid
		cfg.Pipeline.Source.URI = ""
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source.uri is required")
	})

	t.Run("negative stats interval", func(t *testing.T) {
		cfg := valid
		cfg.StatsInterval = -time.Second
		require.Error(t, Validate(cfg))
	})
}

func TestMarshal_RoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Pipeline.Source.URI = "file:///clip.mp4"
	cfg.StatsInterval = 5 * time.Second

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "stats_interval: 5s"), "durations render as strings:\n%s", data)

	path := writeFile(t, t.TempDir(), "dump.yaml", string(data))
	back, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Errorf("marshal round trip (-want +got):\n%s", diff)
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join("..", "..", "examples", "railscan.yaml"))
	require.NoError(t, err)

	want := Default()
	want.Pipeline.Source.URI = "file:///data/railway_fault640_640.mp4"
	want.Pipeline.Inference.ConfigFilePath = "config_infer_primary_yoloV11.txt"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("example file drifted from defaults (-want +got):\n%s", diff)
	}
}
