package models

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ValidationError reports missing or invalid input. No I/O has been attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// EnvironmentError reports a filesystem precondition that does not hold.
type EnvironmentError struct {
	Path   string
	Reason string
	Err    error
}

func (e *EnvironmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Path)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// ToolError reports a non-zero exit of an external tool together with its output.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Output)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError wraps a failed tool invocation, keeping the exit code when the
// process ran and -1 when it could not be started.
func NewToolError(tool string, output []byte, err error) *ToolError {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	out := strings.TrimSpace(string(output))
	if out == "" && err != nil {
		out = err.Error()
	}

	return &ToolError{
		Tool:     tool,
		ExitCode: code,
		Output:   out,
		Err:      err,
	}
}
