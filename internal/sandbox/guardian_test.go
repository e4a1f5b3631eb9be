package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gradebox/internal/apperror"
)

func TestGuardian_PassesThroughFastResult(t *testing.T) {
	engine := &fakeEngine{}
	g := NewGuardian(engine, discardLogger())

	out, err := g.Run(context.Background(), "c1", time.Second, func(context.Context) (*Outcome, error) {
		return &Outcome{Stdout: "hi"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Stdout)
	assert.Empty(t, engine.Stopped())
}

func TestGuardian_PassesThroughEngineError(t *testing.T) {
	engine := &fakeEngine{}
	g := NewGuardian(engine, discardLogger())

	_, err := g.Run(context.Background(), "c1", time.Second, func(context.Context) (*Outcome, error) {
		return nil, errEngineDown
	})
	assert.ErrorIs(t, err, errEngineDown)
	assert.Empty(t, engine.Stopped())
}

func TestGuardian_TimeoutReturnsWithoutWaitingAndStops(t *testing.T) {
	engine := &fakeEngine{}
	g := NewGuardian(engine, discardLogger())

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := g.Run(context.Background(), "slow", 50*time.Millisecond, func(context.Context) (*Outcome, error) {
		// Ignores its context, like a wedged engine call.
		<-release
		return &Outcome{}, nil
	})
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, apperror.ErrTimeout))
	assert.Less(t, elapsed, time.Second)
	assert.Eventually(t, func() bool {
		stopped := engine.Stopped()
		return len(stopped) == 1 && stopped[0] == "slow"
	}, time.Second, 5*time.Millisecond)
}

func TestGuardian_TimeoutNoticedByEngine(t *testing.T) {
	engine := &fakeEngine{}
	g := NewGuardian(engine, discardLogger())

	_, err := g.Run(context.Background(), "c2", 20*time.Millisecond, func(ctx context.Context) (*Outcome, error) {
		return blockUntilDone(ctx, Invocation{})
	})
	assert.True(t, errors.Is(err, apperror.ErrTimeout))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "The code took too long to execute (>1 seconds).", appErr.Detail)

	require.NoError(t, g.Shutdown(context.Background()))
	assert.Equal(t, []string{"c2"}, engine.Stopped())
}

func TestGuardian_StopFailureIsNotPropagated(t *testing.T) {
	engine := &fakeEngine{stopErr: errors.New("no such container")}
	g := NewGuardian(engine, discardLogger())

	_, err := g.Run(context.Background(), "c3", 10*time.Millisecond, func(ctx context.Context) (*Outcome, error) {
		return blockUntilDone(ctx, Invocation{})
	})
	assert.True(t, errors.Is(err, apperror.ErrTimeout))
	assert.NoError(t, g.Shutdown(context.Background()))
}

func TestGuardian_CallerCancellationStopsContainer(t *testing.T) {
	engine := &fakeEngine{}
	g := NewGuardian(engine, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Run(ctx, "c4", time.Minute, func(ctx context.Context) (*Outcome, error) {
		return blockUntilDone(ctx, Invocation{})
	})
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, g.Shutdown(context.Background()))
	assert.Equal(t, []string{"c4"}, engine.Stopped())
}
