package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/pattern"
	"github.com/praxis-dev/praxis/internal/session"
	"github.com/praxis-dev/praxis/internal/state"
	"github.com/praxis-dev/praxis/internal/tools"
)

// scripted is one NextStep outcome.
type scripted struct {
	step state.ReasoningStep
	err  error
}

// fakePattern replays a fixed script of steps. Past the end of the script it
// keeps returning the last entry.
type fakePattern struct {
	name string
	cfg  pattern.Config

	mu     sync.Mutex
	script []scripted
	calls  int

	block     chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func (p *fakePattern) Name() string           { return p.name }
func (p *fakePattern) Config() pattern.Config { return p.cfg }

func (p *fakePattern) NextStep(ctx context.Context, ec *state.ExecutionContext) (state.ReasoningStep, error) {
	if p.started != nil {
		p.startOnce.Do(func() { close(p.started) })
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return state.ReasoningStep{}, pattern.WrapError(pattern.KindInternal, p.name, "completion interrupted", ctx.Err())
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	s := p.script[idx]
	return s.step, s.err
}

func (p *fakePattern) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakePattern) ShouldContinue(ec *state.ExecutionContext) bool { return !ec.HasFinalAnswer() }
func (p *fakePattern) FormatPrompt(query string) string               { return query }
func (p *fakePattern) ParseResponse(text string) (state.ReasoningStep, error) {
	return state.ReasoningStep{}, nil
}

// fakeTool returns a canned output after an optional delay.
type fakeTool struct {
	name  string
	out   string
	fail  bool
	delay time.Duration
}

func (t *fakeTool) Name() string                   { return t.name }
func (t *fakeTool) Description() string            { return "test tool" }
func (t *fakeTool) Parameters() []tools.ParameterSpec { return nil }

func (t *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if t.fail {
		return "", fmt.Errorf("%s exploded", t.name)
	}
	return t.out, nil
}

// captureArchiver records the last archived session record.
type captureArchiver struct {
	mu  sync.Mutex
	rec *session.Record
}

func (a *captureArchiver) Archive(ctx context.Context, rec *session.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec = rec
	return nil
}

func (a *captureArchiver) last() *session.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec
}

func thoughtStep(text string) scripted {
	return scripted{step: state.ReasoningStep{Type: state.StepThought, Thought: text}}
}

func finalStep(answer string) scripted {
	return scripted{step: state.ReasoningStep{Type: state.StepFinalAnswer, FinalAnswer: answer}}
}

func newTestExecutor(t *testing.T, reg *tools.Registry, opts ...Option) *Executor {
	t.Helper()
	if reg == nil {
		reg = tools.NewRegistry(zap.NewNop())
	}
	return New(reg, zap.NewNop(), opts...)
}

func TestRun_ImmediateFinalAnswer(t *testing.T) {
	fp := &fakePattern{
		name:   "fake",
		cfg:    pattern.DefaultConfig(),
		script: []scripted{finalStep("42")},
	}
	e := newTestExecutor(t, nil)

	res, err := e.Run(context.Background(), fp, "what is 6*7?", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "42", res.Output)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, fp.callCount())
}

func TestRun_ActionThenFinal(t *testing.T) {
	reg := tools.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(&fakeTool{name: "lookup", out: "paris"}))

	fp := &fakePattern{
		name: "fake",
		cfg:  pattern.DefaultConfig(),
		script: []scripted{
			{step: state.ReasoningStep{
				Type:    state.StepAction,
				Thought: "I should look this up",
				Action:  &state.ActionRequest{Tool: "lookup", Args: map[string]interface{}{"q": "capital of france"}},
			}},
			finalStep("paris"),
		},
	}
	arch := &captureArchiver{}
	e := newTestExecutor(t, reg, WithArchiver(arch))

	res, err := e.Run(context.Background(), fp, "capital of france?", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "paris", res.Output)
	assert.Equal(t, 2, res.Iterations)

	rec := arch.last()
	require.NotNil(t, rec)
	assert.Equal(t, string(StatusCompleted), rec.Status)
	require.Len(t, rec.History, 3) // thought, observation, final answer
	assert.Equal(t, state.EntryThought, rec.History[0].Kind)
	assert.Equal(t, state.EntryObservation, rec.History[1].Kind)
	assert.Equal(t, "paris", rec.History[1].Result.Output)
	assert.Equal(t, state.EntryFinalAnswer, rec.History[2].Kind)
}

func TestRun_ParallelActionsOrderedWithPartialFailure(t *testing.T) {
	reg := tools.NewRegistry(zap.NewNop())
	// The first-requested tool is the slowest, so completion order differs
	// from request order.
	require.NoError(t, reg.Register(&fakeTool{name: "alpha", out: "A", delay: 40 * time.Millisecond}))
	require.NoError(t, reg.Register(&fakeTool{name: "beta", fail: true, delay: 10 * time.Millisecond}))
	require.NoError(t, reg.Register(&fakeTool{name: "gamma", out: "C"}))

	fp := &fakePattern{
		name: "fake",
		cfg:  pattern.DefaultConfig(),
		script: []scripted{
			{step: state.ReasoningStep{
				Type: state.StepParallelActions,
				Parallel: []state.ActionRequest{
					{Tool: "alpha"},
					{Tool: "beta"},
					{Tool: "gamma"},
				},
			}},
			finalStep("done"),
		},
	}
	arch := &captureArchiver{}
	e := newTestExecutor(t, reg, WithArchiver(arch))

	res, err := e.Run(context.Background(), fp, "fan out", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)

	rec := arch.last()
	require.NotNil(t, rec)
	require.Len(t, rec.History, 4) // three observations plus the final answer

	obs := rec.History[:3]
	assert.Equal(t, "alpha", obs[0].Result.Tool)
	assert.True(t, obs[0].Result.Success)
	assert.Equal(t, "A", obs[0].Result.Output)

	assert.Equal(t, "beta", obs[1].Result.Tool)
	assert.False(t, obs[1].Result.Success)
	assert.Contains(t, obs[1].Result.Error, "beta exploded")

	assert.Equal(t, "gamma", obs[2].Result.Tool)
	assert.True(t, obs[2].Result.Success)
}

func TestRun_MaxIterationsHalts(t *testing.T) {
	fp := &fakePattern{
		name:   "fake",
		cfg:    pattern.DefaultConfig(),
		script: []scripted{thoughtStep("still thinking")},
	}
	e := newTestExecutor(t, nil)

	_, err := e.Run(context.Background(), fp, "endless", Budget{MaxIterations: 3})
	require.Error(t, err)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, FailureMaxIterations, ee.Kind)
	assert.Equal(t, 3, fp.callCount())
}

func TestRun_TokenBudgetExhausted(t *testing.T) {
	fp := &fakePattern{
		name: "fake",
		cfg:  pattern.DefaultConfig(),
		script: []scripted{
			{step: state.ReasoningStep{Type: state.StepThought, Thought: "a", Tokens: 60}},
		},
	}
	e := newTestExecutor(t, nil)

	_, err := e.Run(context.Background(), fp, "spendy", Budget{MaxTokens: 100})
	require.Error(t, err)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, FailureBudgetExhausted, ee.Kind)
	// 60 tokens after the first step is under budget, 120 after the second
	// crosses it.
	assert.Equal(t, 2, fp.callCount())
}

func TestRun_SessionTimeout(t *testing.T) {
	fp := &fakePattern{
		name:   "fake",
		cfg:    pattern.DefaultConfig(),
		script: []scripted{thoughtStep("never returned")},
		block:  make(chan struct{}), // never closed: blocks until ctx expires
	}
	e := newTestExecutor(t, nil)

	_, err := e.Run(context.Background(), fp, "slow", Budget{Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, FailureBudgetExhausted, ee.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_RepeatedParseFailuresFatal(t *testing.T) {
	parseErr := pattern.NewError(pattern.KindParse, "fake", "no markers found")
	fp := &fakePattern{
		name:   "fake",
		cfg:    pattern.DefaultConfig(),
		script: []scripted{{err: parseErr}},
	}
	e := newTestExecutor(t, nil)

	_, err := e.Run(context.Background(), fp, "garbled", Budget{})
	require.Error(t, err)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, FailureParse, ee.Kind)
	assert.Equal(t, 2, fp.callCount())
}

func TestRun_SingleParseFailureRecovers(t *testing.T) {
	parseErr := pattern.NewError(pattern.KindParse, "fake", "no markers found")
	fp := &fakePattern{
		name: "fake",
		cfg:  pattern.DefaultConfig(),
		script: []scripted{
			{err: parseErr},
			finalStep("recovered"),
		},
	}
	e := newTestExecutor(t, nil)

	res, err := e.Run(context.Background(), fp, "flaky", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Output)
	assert.Equal(t, 2, res.Iterations)
}

func TestRun_LLMFailureIsNonFatalObservation(t *testing.T) {
	fp := &fakePattern{
		name: "fake",
		cfg:  pattern.DefaultConfig(),
		script: []scripted{
			{err: pattern.WrapError(pattern.KindInternal, "fake", "completion failed", errors.New("boom"))},
			finalStep("ok")},
	}
	arch := &captureArchiver{}
	e := newTestExecutor(t, nil, WithArchiver(arch))

	res, err := e.Run(context.Background(), fp, "transient", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)

	rec := arch.last()
	require.NotNil(t, rec)
	require.Len(t, rec.History, 2)
	assert.Equal(t, state.EntryObservation, rec.History[0].Kind)
	assert.False(t, rec.History[0].Result.Success)
}

func TestRun_UnknownToolIsNonFatal(t *testing.T) {
	fp := &fakePattern{
		name: "fake",
		cfg:  pattern.DefaultConfig(),
		script: []scripted{
			{step: state.ReasoningStep{
				Type:   state.StepAction,
				Action: &state.ActionRequest{Tool: "nonexistent"},
			}},
			finalStep("moved on"),
		},
	}
	arch := &captureArchiver{}
	e := newTestExecutor(t, nil, WithArchiver(arch))

	res, err := e.Run(context.Background(), fp, "bad tool", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "moved on", res.Output)

	rec := arch.last()
	require.NotNil(t, rec)
	assert.False(t, rec.History[0].Result.Success)
	assert.Contains(t, rec.History[0].Result.Error, "tool not found")
}

func TestRun_ActionTimeout(t *testing.T) {
	reg := tools.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(&fakeTool{name: "slow", out: "late", delay: 500 * time.Millisecond}))

	cfg := pattern.DefaultConfig()
	cfg.ActionTimeout = 30 * time.Millisecond
	fp := &fakePattern{
		name: "fake",
		cfg:  cfg,
		script: []scripted{
			{step: state.ReasoningStep{
				Type:   state.StepAction,
				Action: &state.ActionRequest{Tool: "slow"},
			}},
			finalStep("gave up"),
		},
	}
	arch := &captureArchiver{}
	e := newTestExecutor(t, reg, WithArchiver(arch))

	res, err := e.Run(context.Background(), fp, "slow tool", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "gave up", res.Output)

	rec := arch.last()
	require.NotNil(t, rec)
	assert.False(t, rec.History[0].Result.Success)
	assert.Contains(t, rec.History[0].Result.Error, "timed out")
}

func TestRun_UnhandledExtensionContinues(t *testing.T) {
	fp := &fakePattern{
		name: "fake",
		cfg:  pattern.DefaultConfig(),
		script: []scripted{
			{step: state.ReasoningStep{
				Type:      state.StepExtension,
				Extension: &state.ExtensionStep{Pattern: "fake", Kind: "hint", Payload: "try harder"},
			}},
			finalStep("done"),
		},
	}
	arch := &captureArchiver{}
	e := newTestExecutor(t, nil, WithArchiver(arch))

	res, err := e.Run(context.Background(), fp, "extended", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)

	rec := arch.last()
	require.NotNil(t, rec)
	assert.Equal(t, state.EntryExtension, rec.History[0].Kind)
	assert.Contains(t, rec.History[0].Content, "try harder")
}

func TestRun_RejectsConcurrentSessions(t *testing.T) {
	release := make(chan struct{})
	fp := &fakePattern{
		name:    "fake",
		cfg:     pattern.DefaultConfig(),
		script:  []scripted{finalStep("first")},
		block:   release,
		started: make(chan struct{}),
	}
	probe := &fakePattern{
		name:   "probe",
		cfg:    pattern.DefaultConfig(),
		script: []scripted{finalStep("second")},
	}
	e := newTestExecutor(t, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Run(context.Background(), fp, "first", Budget{})
	}()

	// Wait until the first session holds the slot, then contend for it.
	<-fp.started
	_, err := e.Run(context.Background(), probe, "second", Budget{})
	assert.ErrorIs(t, err, ErrSessionActive)

	close(release)
	<-done

	// The slot frees up once the first session finishes.
	res, err := e.Run(context.Background(), probe, "third", Budget{})
	require.NoError(t, err)
	assert.Equal(t, "second", res.Output)
}

func TestRun_ArchivesFailedSession(t *testing.T) {
	fp := &fakePattern{
		name:   "fake",
		cfg:    pattern.DefaultConfig(),
		script: []scripted{thoughtStep("looping")},
	}
	arch := &captureArchiver{}
	e := newTestExecutor(t, nil, WithArchiver(arch))

	_, err := e.Run(context.Background(), fp, "doomed", Budget{MaxIterations: 2})
	require.Error(t, err)

	rec := arch.last()
	require.NotNil(t, rec)
	assert.Equal(t, string(StatusFailed), rec.Status)
	assert.Contains(t, rec.FailureReason, "max_iterations")
	assert.Equal(t, 2, rec.Iterations)
}

func TestSession_TerminalTransitions(t *testing.T) {
	s := NewSession(Budget{})
	assert.Equal(t, StatusPending, s.Status)

	require.NoError(t, s.transition(StatusRunning))
	require.NoError(t, s.transition(StatusCompleted))
	assert.True(t, s.Status.Terminal())

	err := s.transition(StatusRunning)
	require.Error(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
}
