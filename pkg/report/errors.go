package report

import (
	"fmt"

	"github.com/s2e/lcov/pkg/runs"
)

// ConfigurationError reports malformed run selection parameters. It aborts
// the report before any module is processed.
type ConfigurationError = runs.ConfigurationError

// ResolutionError means the addresses of a module could not be mapped to
// source lines, typically because of missing or mismatched debug
// information.
type ResolutionError struct {
	Module string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving lines of %s: %v", e.Module, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// IOError means the tracefile of a module could not be written.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// RenderError means the HTML renderer failed for a module.
type RenderError struct {
	Module string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering HTML report of %s: %v", e.Module, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func panicError(p interface{}) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", p)
}
