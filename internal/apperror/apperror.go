// Package apperror defines the execution error taxonomy.
//
// Every component of the execution core returns an *AppError wrapping one of
// the sentinel kinds below. The executor turns that into a response with
// errors.Is, so raw filesystem or Docker errors never reach a caller.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrWorkspace       = errors.New("workspace error")
	ErrCompile         = errors.New("compile error")
	ErrArtifactMissing = errors.New("artifact missing")
	ErrRuntime         = errors.New("runtime error")
	ErrTimeout         = errors.New("execution timeout")
	ErrMismatch        = errors.New("output mismatch")
	ErrInternal        = errors.New("internal error")
)

type AppError struct {
	Err     error  // kind sentinel
	Message string // Human-readable error message
	Detail  string // Optional: captured stderr or the underlying cause
	Code    int    // Optional: process exit code
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func InvalidRequest(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidRequest,
		Message: message,
	}
}

// Workspace reports a filesystem failure during op ("create", "write", ...).
// It is never attributable to user code.
func Workspace(op string, err error) *AppError {
	return &AppError{
		Err:     ErrWorkspace,
		Message: fmt.Sprintf("workspace %s failed", op),
		Detail:  err.Error(),
	}
}

// Compile carries the compiler's stderr verbatim.
func Compile(stderr string, exitCode int) *AppError {
	return &AppError{
		Err:     ErrCompile,
		Message: "Compilation failed",
		Detail:  stderr,
		Code:    exitCode,
	}
}

func ArtifactMissing(label string) *AppError {
	return &AppError{
		Err:     ErrArtifactMissing,
		Message: fmt.Sprintf("%s not created after compilation", label),
	}
}

func Runtime(stderr string, exitCode int) *AppError {
	return &AppError{
		Err:     ErrRuntime,
		Message: "Runtime error",
		Detail:  stderr,
		Code:    exitCode,
	}
}

func Timeout(seconds int) *AppError {
	return &AppError{
		Err:     ErrTimeout,
		Message: "Execution timed out",
		Detail:  fmt.Sprintf("The code took too long to execute (>%d seconds).", seconds),
	}
}

// Internal wraps an unexpected failure. The message is the error text only.
func Internal(err error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: err.Error(),
	}
}
