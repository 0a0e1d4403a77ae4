package railscan

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyReleased is returned when Teardown runs a second time.
	ErrAlreadyReleased = errors.New("railscan: pipeline already released")

	// ErrInvalidState is returned when a lifecycle method is called out of order.
	ErrInvalidState = errors.New("railscan: invalid lifecycle state")

	// ErrInterrupted is returned by Play when an interrupt arrived before
	// the pipeline started.
	ErrInterrupted = errors.New("railscan: interrupted before playing")
)

// ConfigError reports an invalid PipelineConfig.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("railscan: invalid configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StageCreationError reports that the engine could not instantiate a stage.
// It is a missing runtime capability, never a transient condition.
type StageCreationError struct {
	Kind   StageKind
	Plugin string
	Err    error
}

func (e *StageCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("railscan: failed to create %s stage (plugin %q): %v", e.Kind, e.Plugin, e.Err)
	}
	return fmt.Sprintf("railscan: failed to create %s stage (plugin %q)", e.Kind, e.Plugin)
}

func (e *StageCreationError) Unwrap() error { return e.Err }

// PropertyError reports that a created stage rejected a property assignment.
type PropertyError struct {
	Kind     StageKind
	Property string
	Err      error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("railscan: failed to set %s property %q: %v", e.Kind, e.Property, e.Err)
}

func (e *PropertyError) Unwrap() error { return e.Err }

// LinkError reports that two stages could not be connected.
type LinkError struct {
	From StageKind
	To   StageKind
	Err  error
}

func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("railscan: failed to link %s to %s: %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("railscan: failed to link %s to %s", e.From, e.To)
}

func (e *LinkError) Unwrap() error { return e.Err }

// TransitionError reports that the engine rejected a lifecycle transition.
type TransitionError struct {
	From LifecycleState
	To   LifecycleState
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("railscan: engine rejected transition %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// RuntimeError is an asynchronous failure reported by the running graph.
type RuntimeError struct {
	Source   string
	Message  string
	Debug    string
	Category ErrorCategory
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("railscan: runtime error from element %s [%s]: %s", e.Source, e.Category, e.Message)
}

// IsBuildError reports whether err came from graph construction.
func IsBuildError(err error) bool {
	var (
		sce *StageCreationError
		pe  *PropertyError
		le  *LinkError
	)
	return errors.As(err, &sce) || errors.As(err, &pe) || errors.As(err, &le)
}
