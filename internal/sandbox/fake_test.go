package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// fakeEngine records invocations and stops without touching Docker.
type fakeEngine struct {
	mu      sync.Mutex
	runs    []Invocation
	stopped []string
	stopErr error

	run func(ctx context.Context, inv Invocation) (*Outcome, error)
}

func (f *fakeEngine) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	f.mu.Lock()
	f.runs = append(f.runs, inv)
	f.mu.Unlock()
	if f.run == nil {
		return &Outcome{}, nil
	}
	return f.run(ctx, inv)
}

func (f *fakeEngine) Stop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return f.stopErr
}

func (f *fakeEngine) Stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

func (f *fakeEngine) Runs() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.runs...)
}

// blockUntilDone simulates a process that never exits on its own.
func blockUntilDone(ctx context.Context, _ Invocation) (*Outcome, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var errEngineDown = errors.New("cannot connect to the Docker daemon")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
