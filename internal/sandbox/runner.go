package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/gradebox/internal/apperror"
	"github.com/sakif/gradebox/internal/language"
	"github.com/sakif/gradebox/internal/workspace"
)

// Limits are the caps applied to every run container.
type Limits struct {
	MemoryBytes    int64
	CPUs           float64
	RunTimeout     time.Duration
	CompileTimeout time.Duration
}

// Runner drives the compile and run steps of a request through an Engine.
type Runner struct {
	engine Engine
	guard  *Guardian
	limits Limits
	logger *slog.Logger
}

func NewRunner(engine Engine, guard *Guardian, limits Limits, logger *slog.Logger) *Runner {
	return &Runner{
		engine: engine,
		guard:  guard,
		limits: limits,
		logger: logger,
	}
}

// Compile builds the workspace source. It is a no-op for interpreted
// languages.
//
// The workspace is mounted read-write so the compiler can leave its output
// next to the source. A zero exit without the profile's artifact is
// reported as ErrArtifactMissing, not as a compile error.
func (r *Runner) Compile(ctx context.Context, p language.Profile, ws *workspace.Workspace) (*Outcome, error) {
	if !p.Compiled() {
		return nil, nil
	}

	args, err := p.CompileArgs(MountTarget)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	inv := Invocation{
		Name:            NewContainerName(),
		Image:           p.Image,
		Cmd:             args,
		Mount:           Mount{Source: ws.Dir, Target: MountTarget},
		Scratch:         ScratchDir,
		NetworkDisabled: true,
	}

	r.logger.Debug("compiling",
		slog.String("language", string(p.ID)),
		slog.String("container", inv.Name),
	)

	out, err := r.guard.Run(ctx, inv.Name, r.limits.CompileTimeout, func(ctx context.Context) (*Outcome, error) {
		return r.engine.Run(ctx, inv)
	})
	if err != nil {
		return nil, r.translate("compile", err)
	}

	if out.ExitCode != 0 {
		return out, apperror.Compile(out.Stderr, out.ExitCode)
	}
	if p.Artifact != "" && !ws.Exists(p.Artifact) {
		return out, apperror.ArtifactMissing(p.ArtifactLabel)
	}
	return out, nil
}

// Run executes the built program once with input on stdin, in a fresh
// read-only, network-less, capped container.
func (r *Runner) Run(ctx context.Context, p language.Profile, ws *workspace.Workspace, input string) (*Outcome, error) {
	args, err := p.RunArgs(MountTarget)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	inv := Invocation{
		Name:            NewContainerName(),
		Image:           p.Image,
		Cmd:             args,
		Mount:           Mount{Source: ws.Dir, Target: MountTarget, ReadOnly: true},
		Scratch:         ScratchDir,
		MemoryBytes:     r.limits.MemoryBytes,
		NanoCPUs:        int64(r.limits.CPUs * 1e9),
		NetworkDisabled: true,
		Stdin:           input,
	}

	out, err := r.guard.Run(ctx, inv.Name, r.limits.RunTimeout, func(ctx context.Context) (*Outcome, error) {
		return r.engine.Run(ctx, inv)
	})
	if err != nil {
		return nil, r.translate("run", err)
	}

	r.logger.Debug("run finished",
		slog.String("container", inv.Name),
		slog.Int("exit_code", out.ExitCode),
		slog.Duration("duration", out.Duration),
	)

	if out.ExitCode != 0 {
		return out, apperror.Runtime(out.Stderr, out.ExitCode)
	}
	return out, nil
}

// translate keeps taxonomy errors as they are and turns anything else from
// the engine into ErrInternal.
func (r *Runner) translate(phase string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	r.logger.Error("sandbox failure",
		slog.String("phase", phase),
		slog.String("error", err.Error()),
	)
	return apperror.Internal(fmt.Errorf("sandbox %s: %w", phase, err))
}
