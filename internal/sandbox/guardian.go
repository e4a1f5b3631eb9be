package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sakif/gradebox/internal/apperror"
	"github.com/sakif/gradebox/internal/metrics"
)

// DefaultStopTimeout bounds a single out-of-band stop.
const DefaultStopTimeout = 30 * time.Second

// Stopper terminates a container by name.
type Stopper interface {
	Stop(ctx context.Context, name string) error
}

// Guardian enforces wall-clock deadlines on sandbox invocations.
//
// When a deadline passes, Run returns right away and the container is
// stopped in a detached goroutine. Stop failures are logged only; the
// container's own caps and auto-removal bound what a missed stop can leak.
type Guardian struct {
	stopper     Stopper
	logger      *slog.Logger
	stopTimeout time.Duration

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGuardian(stopper Stopper, logger *slog.Logger) *Guardian {
	base, cancel := context.WithCancel(context.Background())
	return &Guardian{
		stopper:     stopper,
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
		base:        base,
		cancel:      cancel,
	}
}

// Run calls fn with a context that expires after limit. name identifies the
// container fn is driving, so it can be stopped if the deadline passes.
//
// On expiry Run returns an ErrTimeout AppError without waiting for fn. If
// the caller's ctx is cancelled first, the container is stopped as well and
// ctx.Err() is returned.
func (g *Guardian) Run(ctx context.Context, name string, limit time.Duration, fn func(context.Context) (*Outcome, error)) (*Outcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := fn(runCtx)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.out, nil
		}
		// The engine may notice the deadline before we do.
		if runCtx.Err() != nil {
			return nil, g.expire(ctx, name, limit)
		}
		return nil, res.err
	case <-runCtx.Done():
		return nil, g.expire(ctx, name, limit)
	}
}

func (g *Guardian) expire(ctx context.Context, name string, limit time.Duration) error {
	g.scheduleStop(name)
	if err := ctx.Err(); err != nil {
		return err
	}
	g.logger.Warn("sandbox deadline exceeded",
		slog.String("container", name),
		slog.Duration("limit", limit),
	)
	return apperror.Timeout(int(math.Ceil(limit.Seconds())))
}

// scheduleStop terminates name in the background. The caller never waits.
func (g *Guardian) scheduleStop(name string) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(g.base, g.stopTimeout)
		defer cancel()

		if err := g.stopper.Stop(ctx, name); err != nil {
			metrics.ContainerStops.WithLabelValues("error").Inc()
			g.logger.Error("failed to stop container",
				slog.String("container", name),
				slog.String("error", err.Error()),
			)
			return
		}
		metrics.ContainerStops.WithLabelValues("ok").Inc()
		g.logger.Info("stopped timed-out container", slog.String("container", name))
	}()
}

// Shutdown waits for scheduled stops to finish. If ctx expires first the
// remaining stops are cancelled.
func (g *Guardian) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("container stops abandoned at shutdown")
		}
		return ctx.Err()
	}
}
