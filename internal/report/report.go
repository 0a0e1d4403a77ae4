// Package report persists a JSON summary of each supervised session.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/e7canasta/railscan"
	"github.com/e7canasta/railscan/internal/throughput"
	"github.com/google/renameio/v2"
)

// Session is the on-disk summary.
type Session struct {
	RunID      string              `json:"run_id"`
	URI        string              `json:"uri"`
	Pipeline   string              `json:"pipeline"`
	StartedAt  time.Time           `json:"started_at,omitempty"`
	StoppedAt  time.Time           `json:"stopped_at,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	ExitCode   int                 `json:"exit_code"`
	Warnings   uint64              `json:"warnings"`
	Messages   map[string]uint64   `json:"messages,omitempty"`
	Error      *ErrorDetail        `json:"error,omitempty"`
	Throughput *throughput.Summary `json:"throughput,omitempty"`
}

// ErrorDetail describes the failure that ended the session.
type ErrorDetail struct {
	Element  string `json:"element,omitempty"`
	Message  string `json:"message"`
	Debug    string `json:"debug,omitempty"`
	Category string `json:"category,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

// NewSession assembles a summary from the controller outcome. err is the
// error Execute returned and may be a build or transition failure.
func NewSession(cfg railscan.PipelineConfig, out railscan.Outcome, err error, exitCode int) Session {
	s := Session{
		RunID:     out.RunID,
		URI:       cfg.Source.URI,
		Pipeline:  cfg.Name,
		StartedAt: out.StartedAt,
		StoppedAt: out.StoppedAt,
		Reason:    string(out.Reason),
		ExitCode:  exitCode,
		Warnings:  out.Warnings,
		Messages:  out.Messages,
	}
	switch {
	case out.Err != nil:
		s.Error = &ErrorDetail{
			Element:  out.Err.Source,
			Message:  out.Err.Message,
			Debug:    out.Err.Debug,
			Category: out.Err.Category.String(),
			Hint:     out.Err.Category.Hint(),
		}
	case err != nil:
		s.Error = &ErrorDetail{Message: err.Error()}
	}
	return s
}

// FileName returns the report file name for a run.
func FileName(runID string) string {
	return "session-" + runID + ".json"
}

// Write stores the session under dir, replacing any previous file for the
// same run atomically. It returns the written path.
func Write(dir string, s Session) (string, error) {
	if s.RunID == "" {
		return "", fmt.Errorf("report: run id is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}
	path := filepath.Join(dir, FileName(s.RunID))

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("report: create pending file: %w", err)
	}
	defer pending.Cleanup()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("report: encode: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("report: replace %s: %w", path, err)
	}
	return path, nil
}

// Read loads a session file.
func Read(path string) (Session, error) {
	var s Session
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("report: decode %s: %w", path, err)
	}
	return s, nil
}
