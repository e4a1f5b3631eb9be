package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/gradebox/internal/apperror"
	"github.com/sakif/gradebox/internal/language"
	"github.com/sakif/gradebox/internal/metrics"
	"github.com/sakif/gradebox/internal/sandbox"
	"github.com/sakif/gradebox/internal/workspace"
)

// Runner builds and runs code in the sandbox. *sandbox.Runner implements it.
type Runner interface {
	Compile(ctx context.Context, p language.Profile, ws *workspace.Workspace) (*sandbox.Outcome, error)
	Run(ctx context.Context, p language.Profile, ws *workspace.Workspace, input string) (*sandbox.Outcome, error)
}

// Grader implements Executor.
//
// Per request:
//
//	validate → create workspace → compile (or skip) → run/compare each test
//
// The loop stops at the first test that does not pass. The workspace is
// removed on every exit path, including a recovered panic.
type Grader struct {
	registry   *language.Registry
	workspaces *workspace.Manager
	runner     Runner
	logger     *slog.Logger
}

var _ Executor = (*Grader)(nil)

func NewGrader(registry *language.Registry, workspaces *workspace.Manager, runner Runner, logger *slog.Logger) *Grader {
	return &Grader{
		registry:   registry,
		workspaces: workspaces,
		runner:     runner,
		logger:     logger,
	}
}

// Execute grades req. It always returns a Result.
func (g *Grader) Execute(ctx context.Context, req Request) (res *Result) {
	start := time.Now()
	logger := g.logger.With(
		slog.String("execution_id", xid.New().String()),
		slog.String("language", req.Language),
	)
	lang := g.metricLabel(req.Language)

	metrics.ActiveExecutions.Inc()
	defer func() {
		metrics.ActiveExecutions.Dec()
		metrics.ExecutionsTotal.WithLabelValues(lang, string(res.Status)).Inc()
		metrics.PhaseDuration.WithLabelValues(lang, "total").Observe(time.Since(start).Seconds())
		logger.Info("execution finished",
			slog.String("status", string(res.Status)),
			slog.Int("tests_run", len(res.Tests)),
			slog.Duration("duration", time.Since(start)),
		)
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during execution", slog.Any("panic", r))
			res = resultFromError(apperror.Internal(fmt.Errorf("%v", r)), nil)
		}
	}()

	profile, err := g.validate(req)
	if err != nil {
		return resultFromError(err, nil)
	}

	ws, err := g.workspaces.Create()
	if err != nil {
		logger.Error("workspace creation failed", slog.String("error", err.Error()))
		return resultFromError(err, nil)
	}
	defer g.workspaces.Destroy(ws)

	if _, err := ws.WriteSource(profile.Assemble(req.UserCode, req.Template), profile.Extension); err != nil {
		logger.Error("writing source failed", slog.String("error", err.Error()))
		return resultFromError(err, nil)
	}

	if profile.Compiled() {
		compileStart := time.Now()
		_, err := g.runner.Compile(ctx, profile, ws)
		metrics.PhaseDuration.WithLabelValues(lang, "compile").Observe(time.Since(compileStart).Seconds())
		if err != nil {
			return resultFromError(err, nil)
		}
	}

	outcomes := make([]TestOutcome, 0, len(req.Tests))
	for _, tc := range req.Tests {
		out, err := g.runner.Run(ctx, profile, ws, tc.Input)
		if out != nil {
			metrics.PhaseDuration.WithLabelValues(lang, "run").Observe(out.Duration.Seconds())
		}
		if err != nil {
			outcomes = append(outcomes, TestOutcome{Input: tc.Input, Expected: tc.Expected, Reason: err.Error()})
			res = resultFromError(err, &tc.Input)
			res.Tests = outcomes
			return res
		}

		actual := Normalize(out.Stdout)
		if !Compare(actual, tc.Expected) {
			outcomes = append(outcomes, TestOutcome{Input: tc.Input, Expected: tc.Expected, Actual: actual})
			return &Result{
				Status:   StatusOutputMismatch,
				Input:    ptr(tc.Input),
				Expected: ptr(tc.Expected),
				Actual:   ptr(actual),
				Error:    "Output mismatch",
				Hint:     HintMismatch,
				Code:     ptr(CodeMismatch),
				Tests:    outcomes,
			}
		}
		outcomes = append(outcomes, TestOutcome{Input: tc.Input, Expected: tc.Expected, Actual: actual, Passed: true})
	}

	return &Result{
		Status:  StatusSuccess,
		Message: ptr("Success!"),
		Code:    ptr(CodeSuccess),
		Tests:   outcomes,
	}
}

// validate runs before any resource is allocated.
func (g *Grader) validate(req Request) (language.Profile, error) {
	if strings.TrimSpace(req.UserCode) == "" {
		return language.Profile{}, apperror.InvalidRequest("user_code must not be empty")
	}
	profile, err := g.registry.Lookup(req.Language)
	if err != nil {
		return language.Profile{}, apperror.InvalidRequest(err.Error())
	}
	return profile, nil
}

// metricLabel keeps arbitrary client input out of label values.
func (g *Grader) metricLabel(id string) string {
	if _, err := g.registry.Lookup(id); err != nil {
		return "unknown"
	}
	return id
}

// Invalid builds the invalid-request response for input rejected before it
// reaches a Grader, such as a malformed request body.
func Invalid(message string) *Result {
	return resultFromError(apperror.InvalidRequest(message), nil)
}

// resultFromError maps a taxonomy error to its response. input is the test
// being run when the error happened, if any.
func resultFromError(err error, input *string) *Result {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(err)
	}

	switch {
	case errors.Is(appErr, apperror.ErrInvalidRequest):
		return &Result{
			Status:  StatusInvalidRequest,
			Error:   "Invalid request",
			Message: ptr(appErr.Message),
			Code:    ptr(CodeInvalid),
		}
	case errors.Is(appErr, apperror.ErrCompile):
		return &Result{
			Status:  StatusCompileError,
			Error:   appErr.Message,
			Message: ptr(appErr.Detail),
			Code:    ptr(appErr.Code),
		}
	case errors.Is(appErr, apperror.ErrArtifactMissing):
		return &Result{
			Status: StatusArtifactMissing,
			Error:  appErr.Message,
		}
	case errors.Is(appErr, apperror.ErrRuntime):
		return &Result{
			Status:  StatusRuntimeError,
			Input:   input,
			Error:   appErr.Message,
			Message: ptr(appErr.Detail),
			Hint:    HintRuntime,
			Code:    ptr(appErr.Code),
		}
	case errors.Is(appErr, apperror.ErrTimeout):
		return &Result{
			Status:  StatusTimeout,
			Error:   appErr.Message,
			Message: ptr(appErr.Detail),
			Hint:    HintTimeout,
			Code:    ptr(CodeTimeout),
		}
	default:
		// Workspace and internal errors: the message names the failed
		// operation, never a stack or host path.
		return &Result{
			Status: StatusInternalError,
			Error:  appErr.Message,
			Code:   ptr(CodeInternal),
		}
	}
}
