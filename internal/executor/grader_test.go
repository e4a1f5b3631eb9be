package executor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gradebox/internal/language"
	"github.com/sakif/gradebox/internal/sandbox"
	"github.com/sakif/gradebox/internal/workspace"
)

// scriptEngine stands in for Docker. It reads the submitted source from the
// mounted workspace and acts on markers in it:
//
//	SYNTAX_ERROR  compile exits 1
//	NO_ARTIFACT   compile exits 0 without output
//	CRASH         run exits 3
//	SLEEP         run blocks until cancelled
//	PAD           run prints stdin followed by trailing whitespace
//	anything else run echoes stdin
type scriptEngine struct {
	mu      sync.Mutex
	runs    []sandbox.Invocation
	stopped []string
	dirs    map[string]bool
}

func newScriptEngine() *scriptEngine {
	return &scriptEngine{dirs: make(map[string]bool)}
}

func (e *scriptEngine) Run(ctx context.Context, inv sandbox.Invocation) (*sandbox.Outcome, error) {
	e.mu.Lock()
	e.runs = append(e.runs, inv)
	e.dirs[inv.Mount.Source] = true
	e.mu.Unlock()

	src := readSource(inv.Mount.Source)

	if !inv.Mount.ReadOnly {
		switch {
		case strings.Contains(src, "SYNTAX_ERROR"):
			return &sandbox.Outcome{Stderr: "user_code.c:2:1: error: expected '}'", ExitCode: 1}, nil
		case strings.Contains(src, "NO_ARTIFACT"):
			return &sandbox.Outcome{}, nil
		}
		artifact := "user_code"
		if inv.Cmd[0] == "javac" {
			artifact = "Main.class"
		}
		return &sandbox.Outcome{}, os.WriteFile(filepath.Join(inv.Mount.Source, artifact), []byte("built"), 0o644)
	}

	switch {
	case strings.Contains(src, "SLEEP"):
		<-ctx.Done()
		return nil, ctx.Err()
	case strings.Contains(src, "CRASH"):
		return &sandbox.Outcome{Stderr: "Traceback: boom", ExitCode: 3}, nil
	case strings.Contains(src, "PAD"):
		return &sandbox.Outcome{Stdout: inv.Stdin + "  \n\n"}, nil
	}
	return &sandbox.Outcome{Stdout: inv.Stdin + "\n", Duration: time.Millisecond}, nil
}

func (e *scriptEngine) Stop(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, name)
	return nil
}

func (e *scriptEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

func (e *scriptEngine) stoppedNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.stopped...)
}

func (e *scriptEngine) workspaceDirs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.dirs))
	for d := range e.dirs {
		out = append(out, d)
	}
	return out
}

func readSource(dir string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, language.SourceBase+".*"))
	if len(matches) == 0 {
		return ""
	}
	data, _ := os.ReadFile(matches[0])
	return string(data)
}

// panicRunner simulates an unexpected fault in the middle of a request.
type panicRunner struct {
	Runner
	dirs []string
}

func (p *panicRunner) Run(_ context.Context, _ language.Profile, ws *workspace.Workspace, _ string) (*sandbox.Outcome, error) {
	p.dirs = append(p.dirs, ws.Dir)
	panic("injected fault")
}

type harness struct {
	grader  *Grader
	engine  *scriptEngine
	manager *workspace.Manager
	guard   *sandbox.Guardian
}

func newHarness(t *testing.T, runTimeout time.Duration) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := newScriptEngine()
	guard := sandbox.NewGuardian(engine, logger)
	t.Cleanup(func() { _ = guard.Shutdown(context.Background()) })

	runner := sandbox.NewRunner(engine, guard, sandbox.Limits{
		MemoryBytes:    50 << 20,
		CPUs:           0.5,
		RunTimeout:     runTimeout,
		CompileTimeout: 5 * time.Second,
	}, logger)

	registry := language.NewRegistry(language.Images{Python: "python", GCC: "gcc", OpenJDK: "openjdk"})
	manager := workspace.NewManager(t.TempDir(), logger)

	return &harness{
		grader:  NewGrader(registry, manager, runner, logger),
		engine:  engine,
		manager: manager,
		guard:   guard,
	}
}

func (h *harness) assertNoWorkspaces(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.manager.Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace directories must be removed")
}

func suite(pairs ...string) TestSuite {
	var s TestSuite
	for i := 0; i+1 < len(pairs); i += 2 {
		s = append(s, TestCase{Input: pairs[i], Expected: pairs[i+1]})
	}
	return s
}

func TestExecute_EchoSucceedsForEveryLanguage(t *testing.T) {
	for _, id := range language.All {
		t.Run(string(id), func(t *testing.T) {
			h := newHarness(t, time.Second)

			res := h.grader.Execute(context.Background(), Request{
				Language: string(id),
				UserCode: "echo program",
				Tests:    suite("hello", "hello"),
			})

			assert.Equal(t, StatusSuccess, res.Status)
			assert.Equal(t, "Success!", *res.Message)
			assert.Equal(t, 0, *res.Code)
			require.Len(t, res.Tests, 1)
			assert.True(t, res.Tests[0].Passed)
			h.assertNoWorkspaces(t)
		})
	}
}

func TestExecute_TrailingWhitespaceStillPasses(t *testing.T) {
	h := newHarness(t, time.Second)

	res := h.grader.Execute(context.Background(), Request{
		Language: "python",
		UserCode: "PAD",
		Tests:    suite("a", "a", "b", "b \n"),
	})
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestExecute_FirstFailureShortCircuits(t *testing.T) {
	h := newHarness(t, time.Second)

	res := h.grader.Execute(context.Background(), Request{
		Language: "python",
		UserCode: "echo",
		Tests:    suite("1", "1", "2", "WRONG", "3", "3"),
	})

	require.Equal(t, StatusOutputMismatch, res.Status)
	assert.Equal(t, "2", *res.Input)
	assert.Equal(t, "WRONG", *res.Expected)
	assert.Equal(t, "2", *res.Actual)
	assert.Equal(t, "Output mismatch", res.Error)
	assert.Equal(t, HintMismatch, res.Hint)
	assert.Equal(t, CodeMismatch, *res.Code)
	assert.Len(t, res.Tests, 2)
	assert.Equal(t, 2, h.engine.runCount(), "test 3 must never run")
	h.assertNoWorkspaces(t)
}

func TestExecute_CompileErrorSkipsRuns(t *testing.T) {
	h := newHarness(t, time.Second)

	res := h.grader.Execute(context.Background(), Request{
		Language: "c",
		UserCode: "int main() { SYNTAX_ERROR",
		Tests:    suite("x", "x"),
	})

	require.Equal(t, StatusCompileError, res.Status)
	assert.Equal(t, "Compilation failed", res.Error)
	assert.NotEmpty(t, *res.Message)
	assert.Equal(t, 1, *res.Code)
	assert.Equal(t, 1, h.engine.runCount(), "only the compile invocation")
	h.assertNoWorkspaces(t)
}

func TestExecute_ArtifactMissing(t *testing.T) {
	h := newHarness(t, time.Second)

	res := h.grader.Execute(context.Background(), Request{
		Language: "c",
		UserCode: "NO_ARTIFACT",
		Tests:    suite("x", "x"),
	})

	assert.Equal(t, StatusArtifactMissing, res.Status)
	assert.Equal(t, "Binary not created after compilation", res.Error)
	assert.Nil(t, res.Code)
	h.assertNoWorkspaces(t)
}

func TestExecute_RuntimeError(t *testing.T) {
	h := newHarness(t, time.Second)

	res := h.grader.Execute(context.Background(), Request{
		Language: "python",
		UserCode: "CRASH",
		Tests:    suite("in", "out"),
	})

	require.Equal(t, StatusRuntimeError, res.Status)
	assert.Equal(t, "in", *res.Input)
	assert.Equal(t, "Runtime error", res.Error)
	assert.Equal(t, "Traceback: boom", *res.Message)
	assert.Equal(t, HintRuntime, res.Hint)
	assert.Equal(t, 3, *res.Code)
}

func TestExecute_TimeoutReturnsAtDeadlineAndStopsContainer(t *testing.T) {
	const limit = 100 * time.Millisecond
	h := newHarness(t, limit)

	start := time.Now()
	res := h.grader.Execute(context.Background(), Request{
		Language: "python",
		UserCode: "SLEEP",
		Tests:    suite("1", "1", "2", "2"),
	})
	elapsed := time.Since(start)

	require.Equal(t, StatusTimeout, res.Status)
	assert.Equal(t, "Execution timed out", res.Error)
	assert.Equal(t, HintTimeout, res.Hint)
	assert.Equal(t, CodeTimeout, *res.Code)
	assert.Equal(t, 408, res.HTTPStatus())
	assert.Less(t, elapsed, limit+time.Second)

	assert.Equal(t, 1, h.engine.runCount())
	runName := h.engine.runs[0].Name
	assert.Eventually(t, func() bool {
		names := h.engine.stoppedNames()
		return len(names) == 1 && names[0] == runName
	}, 2*time.Second, 10*time.Millisecond)
	h.assertNoWorkspaces(t)
}

func TestExecute_InvalidRequestAllocatesNothing(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown language", Request{Language: "cobol", UserCode: "DISPLAY 'HI'."}},
		{"empty code", Request{Language: "python", UserCode: ""}},
		{"blank code", Request{Language: "python", UserCode: " \n\t"}},
		{"missing language", Request{UserCode: "print(1)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)

			res := h.grader.Execute(context.Background(), tt.req)

			assert.Equal(t, StatusInvalidRequest, res.Status)
			assert.Equal(t, "Invalid request", res.Error)
			assert.Equal(t, CodeInvalid, *res.Code)
			assert.Zero(t, h.engine.runCount())
			assert.Empty(t, h.engine.workspaceDirs())
			h.assertNoWorkspaces(t)
		})
	}
}

func TestExecute_PanicBecomesInternalErrorAndCleansUp(t *testing.T) {
	h := newHarness(t, time.Second)
	runner := &panicRunner{Runner: h.grader.runner}
	h.grader.runner = runner

	res := h.grader.Execute(context.Background(), Request{
		Language: "python",
		UserCode: "print(input())",
		Tests:    suite("a", "a"),
	})

	assert.Equal(t, StatusInternalError, res.Status)
	assert.Equal(t, "injected fault", res.Error)
	assert.Equal(t, CodeInternal, *res.Code)
	require.Len(t, runner.dirs, 1)
	_, err := os.Stat(runner.dirs[0])
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_AssemblesTemplateInLanguageOrder(t *testing.T) {
	h := newHarness(t, time.Second)
	var seen string
	h.grader.runner = &capturingRunner{Runner: h.grader.runner, seen: &seen}

	h.grader.Execute(context.Background(), Request{
		Language: "python",
		UserCode: "def solve(x): return x",
		Template: "print(solve(input()))",
		Tests:    suite("z", "z"),
	})
	assert.Equal(t, "def solve(x): return x\nprint(solve(input()))", seen)
}

type capturingRunner struct {
	Runner
	seen *string
}

func (c *capturingRunner) Run(ctx context.Context, p language.Profile, ws *workspace.Workspace, input string) (*sandbox.Outcome, error) {
	*c.seen = readSource(ws.Dir)
	return c.Runner.Run(ctx, p, ws, input)
}

func TestExecute_NoTestsIsSuccess(t *testing.T) {
	h := newHarness(t, time.Second)

	res := h.grader.Execute(context.Background(), Request{Language: "java", UserCode: "class Main {}"})
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, h.engine.runCount(), "compile still runs")
}

func TestExecute_DuplicateTestKeyRunsOnce(t *testing.T) {
	h := newHarness(t, time.Second)

	var req Request
	body := `{"language":"python","user_code":"echo","tests":{"1":"WRONG","2":"2","1":"1"}}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	res := h.grader.Execute(context.Background(), req)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, res.Tests, 2)
	assert.Equal(t, 2, h.engine.runCount())
}
