// Package executor drives a reasoning pattern through its event loop: ask the
// pattern for the next step, execute actions through the tool registry under
// the sandbox, track the execution context, and enforce the session budget.
//
// Scheduling is cooperative and single-session: exactly one session runs per
// executor at a time, and within a session the loop is serial. The next step
// is not requested until the current one, including any parallel action
// fan-out, has fully settled.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/metrics"
	"github.com/praxis-dev/praxis/internal/pattern"
	"github.com/praxis-dev/praxis/internal/session"
	"github.com/praxis-dev/praxis/internal/state"
	"github.com/praxis-dev/praxis/internal/tools"
	"github.com/praxis-dev/praxis/internal/tracing"
)

// ErrSessionActive is returned when a Run is requested while another session
// is still running on this executor.
var ErrSessionActive = errors.New("another session is already running")

// maxConsecutiveParseFailures is how many parse errors in a row the loop
// tolerates before the session fails.
const maxConsecutiveParseFailures = 2

// Archiver persists terminal session records. The redis-backed session.Store
// satisfies it; a nil archiver disables archiving.
type Archiver interface {
	Archive(ctx context.Context, rec *session.Record) error
}

// Executor runs reasoning patterns against the tool registry.
type Executor struct {
	tools   *tools.Registry
	logger  *zap.Logger
	archive Archiver

	mu      sync.Mutex
	running bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithArchiver stores terminal session records through the given archiver.
func WithArchiver(a Archiver) Option {
	return func(e *Executor) { e.archive = a }
}

// New creates an executor over the given tool registry.
func New(reg *tools.Registry, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{tools: reg, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one session of the given pattern against the query, bounded
// by budget. Budget fields left at zero fall back to the pattern's own
// config.
func (e *Executor) Run(ctx context.Context, p pattern.Pattern, query string, budget Budget) (*ExecutionResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrSessionActive
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	sess := NewSession(budget)
	ec := state.NewExecutionContext(query, e.tools.List())
	start := time.Now()

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if budget.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, budget.Timeout)
	}
	defer cancel()

	runCtx, span := tracing.StartSpan(runCtx, "executor.run")
	defer span.End()

	if err := sess.transition(StatusRunning); err != nil {
		return nil, err
	}
	metrics.SessionsStarted.WithLabelValues(p.Name()).Inc()
	e.logger.Info("Session started",
		zap.String("session_id", sess.ID),
		zap.String("pattern", p.Name()),
		zap.String("query", query),
	)

	result, execErr := e.loop(runCtx, sess, p, ec)

	elapsed := time.Since(start)
	status := StatusCompleted
	if execErr != nil {
		status = StatusFailed
	}
	metrics.SessionsCompleted.WithLabelValues(p.Name(), string(status)).Inc()
	metrics.SessionDuration.WithLabelValues(p.Name()).Observe(elapsed.Seconds())
	metrics.SessionIterations.Observe(float64(ec.Iteration))
	metrics.SessionTokensUsed.Observe(float64(ec.TokensUsed))

	e.archiveSession(ctx, sess, p.Name(), ec, result, execErr, start)

	if execErr != nil {
		return nil, execErr
	}
	result.Duration = elapsed
	return result, nil
}

// loop is the reasoning event loop. It returns a result on FinalAnswer and
// an *ExecutionError on any fatal condition.
func (e *Executor) loop(ctx context.Context, sess *Session, p pattern.Pattern, ec *state.ExecutionContext) (*ExecutionResult, error) {
	cfg := p.Config()
	maxIterations := sess.Budget.MaxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.MaxIterations
	}
	maxTokens := sess.Budget.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.MaxTokens
	}

	consecutiveParseFailures := 0

	for {
		// Suspension point #1: the pattern's LLM completion.
		stepCtx, stepSpan := tracing.StartSpan(ctx, "pattern.next_step")
		step, err := p.NextStep(stepCtx, ec)
		stepSpan.End()
		ec.AddTokens(step.Tokens)

		if err != nil {
			if ctx.Err() != nil {
				return nil, e.fail(sess, FailureBudgetExhausted, "session timeout exceeded", ctx.Err())
			}
			if pattern.IsKind(err, pattern.KindParse) {
				consecutiveParseFailures++
				e.logger.Warn("Pattern parse failure",
					zap.String("session_id", sess.ID),
					zap.Int("consecutive", consecutiveParseFailures),
					zap.Error(err),
				)
				if consecutiveParseFailures >= maxConsecutiveParseFailures {
					return nil, e.fail(sess, FailureParse, "repeated pattern parse failures", err)
				}
			} else {
				// LLM I/O failure after retries: recovered locally as a failed
				// observation so the pattern may adapt next iteration.
				e.logger.Warn("Step production failed",
					zap.String("session_id", sess.ID),
					zap.Error(err),
				)
				ec.AddObservation(
					state.ActionRequest{Tool: "llm"},
					state.ActionResult{Tool: "llm", Success: false, Error: err.Error()},
				)
			}
		} else {
			consecutiveParseFailures = 0

			switch step.Type {
			case state.StepThought:
				e.logger.Debug("Thought",
					zap.String("session_id", sess.ID),
					zap.String("thought", step.Thought),
				)
				ec.AddThought(step.Thought)

			case state.StepAction:
				if step.Thought != "" {
					ec.AddThought(step.Thought)
				}
				res := e.dispatch(ctx, *step.Action, cfg.ActionTimeout)
				ec.AddObservation(*step.Action, res)

			case state.StepParallelActions:
				if step.Thought != "" {
					ec.AddThought(step.Thought)
				}
				results := e.dispatchParallel(ctx, step.Parallel, cfg.ActionTimeout)
				// Results are indexed by request position, so observations land
				// in request order regardless of completion order.
				for i, req := range step.Parallel {
					ec.AddObservation(req, results[i])
				}

			case state.StepFinalAnswer:
				ec.AddFinalAnswer(step.FinalAnswer)
				ec.Iteration++
				if err := sess.transition(StatusCompleted); err != nil {
					return nil, e.fail(sess, FailureInternal, "invalid terminal transition", err)
				}
				e.logger.Info("Session completed",
					zap.String("session_id", sess.ID),
					zap.Int("iterations", ec.Iteration),
					zap.Int("tokens_used", ec.TokensUsed),
				)
				return &ExecutionResult{
					SessionID:  sess.ID,
					Output:     step.FinalAnswer,
					Iterations: ec.Iteration,
					TokensUsed: ec.TokensUsed,
				}, nil

			case state.StepExtension:
				e.handleExtension(ctx, p, ec, step)

			default:
				e.logger.Warn("Unrecognized step type, continuing",
					zap.String("session_id", sess.ID),
					zap.String("type", string(step.Type)),
				)
			}
		}

		ec.Iteration++

		if ctx.Err() != nil {
			return nil, e.fail(sess, FailureBudgetExhausted, "session timeout exceeded", ctx.Err())
		}
		if maxTokens > 0 && ec.TokensUsed >= maxTokens {
			return nil, e.fail(sess, FailureBudgetExhausted,
				fmt.Sprintf("token budget exhausted (%d/%d)", ec.TokensUsed, maxTokens), nil)
		}
		if maxIterations > 0 && ec.Iteration >= maxIterations {
			return nil, e.fail(sess, FailureMaxIterations,
				fmt.Sprintf("iteration limit reached (%d)", maxIterations), nil)
		}
		if !p.ShouldContinue(ec) {
			return nil, e.fail(sess, FailureBudgetExhausted, "pattern budget exhausted", nil)
		}
	}
}

// dispatch executes one action, bounded by timeout. Tool failures are
// non-fatal: they come back as an unsuccessful ActionResult.
func (e *Executor) dispatch(ctx context.Context, req state.ActionRequest, timeout time.Duration) state.ActionResult {
	start := time.Now()

	tool, err := e.tools.Get(req.Tool)
	if err != nil {
		metrics.ToolExecutions.WithLabelValues(req.Tool, "not_found").Inc()
		return state.ActionResult{Tool: req.Tool, Success: false, Error: err.Error()}
	}

	execCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	execCtx, span := tracing.StartToolSpan(execCtx, req.Tool)
	defer span.End()

	// Suspension point #2: tool I/O. The goroutine lets a stuck tool be
	// abandoned at the deadline; the result channel is buffered so the
	// abandoned call can still finish without leaking.
	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := tool.Execute(execCtx, req.Args)
		done <- outcome{out, err}
	}()

	var res state.ActionResult
	select {
	case o := <-done:
		res = state.ActionResult{
			Tool:    req.Tool,
			Success: o.err == nil,
			Output:  o.output,
			Elapsed: time.Since(start),
		}
		if o.err != nil {
			res.Error = o.err.Error()
		}
	case <-execCtx.Done():
		res = state.ActionResult{
			Tool:    req.Tool,
			Success: false,
			Error:   fmt.Sprintf("tool %s timed out after %s", req.Tool, timeout),
			Elapsed: time.Since(start),
		}
	}

	status := "ok"
	if !res.Success {
		status = "error"
	}
	metrics.ToolExecutions.WithLabelValues(req.Tool, status).Inc()
	metrics.ToolExecutionDuration.WithLabelValues(req.Tool).Observe(float64(res.Elapsed.Milliseconds()))

	e.logger.Debug("Tool executed",
		zap.String("tool", req.Tool),
		zap.Bool("success", res.Success),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res
}

// dispatchParallel fans out all actions concurrently, each independently
// bounded by the same timeout, and waits for all to settle. A failing action
// never aborts its siblings; results come back indexed by request order.
func (e *Executor) dispatchParallel(ctx context.Context, reqs []state.ActionRequest, timeout time.Duration) []state.ActionResult {
	results := make([]state.ActionResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req state.ActionRequest) {
			defer wg.Done()
			results[i] = e.dispatch(ctx, req, timeout)
		}(i, req)
	}
	wg.Wait()
	return results
}

// handleExtension delegates an extension step to the owning pattern when it
// implements ExtensionHandler; otherwise it is a logged no-op continuation.
func (e *Executor) handleExtension(ctx context.Context, p pattern.Pattern, ec *state.ExecutionContext, step state.ReasoningStep) {
	ext := step.Extension
	if ext == nil {
		return
	}
	if handler, ok := p.(pattern.ExtensionHandler); ok {
		handled, err := handler.HandleExtension(ctx, ec, *ext)
		if err != nil {
			e.logger.Warn("Extension handler failed",
				zap.String("pattern", ext.Pattern),
				zap.String("kind", ext.Kind),
				zap.Error(err),
			)
			return
		}
		if handled {
			return
		}
	}
	e.logger.Info("Unhandled extension step, continuing",
		zap.String("pattern", ext.Pattern),
		zap.String("kind", ext.Kind),
	)
	ec.AddExtension(*ext)
}

// fail marks the session failed with a structured, human-readable reason.
func (e *Executor) fail(sess *Session, kind FailureKind, reason string, cause error) error {
	if !sess.Status.Terminal() {
		_ = sess.transition(StatusFailed)
	}
	sess.FailureReason = fmt.Sprintf("%s: %s", kind, reason)

	e.logger.Error("Session failed",
		zap.String("session_id", sess.ID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	return &ExecutionError{SessionID: sess.ID, Kind: kind, Reason: reason, Err: cause}
}

// archiveSession writes the terminal record when an archiver is configured.
func (e *Executor) archiveSession(ctx context.Context, sess *Session, patternName string, ec *state.ExecutionContext, result *ExecutionResult, execErr error, start time.Time) {
	if e.archive == nil {
		return
	}

	rec := &session.Record{
		ID:         sess.ID,
		Query:      ec.Query,
		Pattern:    patternName,
		Status:     string(sess.Status),
		Iterations: ec.Iteration,
		TokensUsed: ec.TokensUsed,
		StartedAt:  start,
		FinishedAt: time.Now(),
		History:    ec.History,
	}
	if result != nil {
		rec.Output = result.Output
	}
	if execErr != nil {
		rec.FailureReason = sess.FailureReason
	}

	// Archive on a fresh context so a session timeout does not lose the record.
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.archive.Archive(archiveCtx, rec); err != nil {
		e.logger.Warn("Failed to archive session",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}
