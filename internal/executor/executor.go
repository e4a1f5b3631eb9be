// Package executor grades submissions: it validates a request, builds the
// code in a sandbox, runs it against each test case and reports the first
// failure.
package executor

import (
	"context"
	"net/http"
)

// Request is a grading request as decoded from the API.
type Request struct {
	Language string    `json:"language"`
	UserCode string    `json:"user_code"`
	Template string    `json:"template,omitempty"`
	Tests    TestSuite `json:"tests"`
}

// TestCase pairs one stdin input with the expected stdout.
type TestCase struct {
	Input    string
	Expected string
}

// Status is the terminal state of a request.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusInvalidRequest  Status = "invalid_request"
	StatusCompileError    Status = "compile_error"
	StatusArtifactMissing Status = "artifact_missing"
	StatusRuntimeError    Status = "runtime_error"
	StatusTimeout         Status = "timeout"
	StatusOutputMismatch  Status = "output_mismatch"
	StatusInternalError   Status = "internal_error"
)

// Response codes that are not process exit codes.
const (
	CodeSuccess  = 0
	CodeInvalid  = 400
	CodeTimeout  = 408
	CodeInternal = 500
	CodeMismatch = 600
)

const (
	HintRuntime  = "Check your code for errors or unintended behavior."
	HintTimeout  = "Optimize your code or reduce its complexity."
	HintMismatch = "Ensure your code produces the correct output."
)

// TestOutcome records what happened to a single test case.
type TestOutcome struct {
	Input    string
	Expected string
	Actual   string
	Passed   bool
	Reason   string // why it failed, if it did not produce comparable output
}

// Result is the response for one request. Pointer fields are present only
// for the statuses that carry them.
type Result struct {
	Status   Status  `json:"status"`
	Input    *string `json:"input,omitempty"`
	Expected *string `json:"expected,omitempty"`
	Actual   *string `json:"actual,omitempty"`
	Error    string  `json:"error,omitempty"`
	Message  *string `json:"message,omitempty"`
	Hint     string  `json:"hint,omitempty"`
	Code     *int    `json:"code,omitempty"`

	// Tests lists the test cases that were evaluated, in order. It stops at
	// the first failure.
	Tests []TestOutcome `json:"-"`
}

// HTTPStatus is the status line to send with the result. Only timeouts use a
// non-200 status; every other outcome is described by the body.
func (r *Result) HTTPStatus() int {
	if r.Status == StatusTimeout {
		return http.StatusRequestTimeout
	}
	return http.StatusOK
}

// Executor represents the core interface for grading code in an isolated
// environment. Execute never fails: every error becomes a Result.
type Executor interface {
	Execute(ctx context.Context, req Request) *Result
}

func ptr[T any](v T) *T {
	return &v
}
