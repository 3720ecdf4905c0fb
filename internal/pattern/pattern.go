// Package pattern defines the pluggable reasoning strategy abstraction the
// executor drives: given the execution context, a Pattern emits the next
// reasoning step. Patterns call the external LLM capability and never invoke
// tools directly.
package pattern

import (
	"context"
	"time"

	"github.com/praxis-dev/praxis/internal/state"
)

// Config tunes one pattern instance. It is immutable once the pattern is
// built; Settings carries free-form strategy-specific knobs.
type Config struct {
	MaxIterations   int
	MaxTokens       int
	ParallelActions bool
	ActionTimeout   time.Duration
	Settings        map[string]interface{}
}

// DefaultConfig returns the baseline tuning shared by built-in patterns.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 10,
		MaxTokens:     100000,
		ActionTimeout: 30 * time.Second,
	}
}

// clone deep-copies the settings map so a built pattern cannot be retuned
// through the caller's reference.
func (c Config) clone() Config {
	out := c
	if c.Settings != nil {
		out.Settings = make(map[string]interface{}, len(c.Settings))
		for k, v := range c.Settings {
			out.Settings[k] = v
		}
	}
	return out
}

// Pattern is a reasoning strategy. NextStep suspends on the external LLM
// call; it must not perform tool I/O.
type Pattern interface {
	Name() string
	Config() Config
	NextStep(ctx context.Context, ec *state.ExecutionContext) (state.ReasoningStep, error)
	ShouldContinue(ec *state.ExecutionContext) bool
	FormatPrompt(query string) string
	ParseResponse(text string) (state.ReasoningStep, error)
}

// ExtensionHandler is implemented by patterns that interpret their own
// Extension steps. The executor treats unhandled extensions as a logged
// no-op continuation.
type ExtensionHandler interface {
	HandleExtension(ctx context.Context, ec *state.ExecutionContext, ext state.ExtensionStep) (bool, error)
}

// shouldContinue is the shared termination predicate: stop once history holds
// a final answer or either budget dimension is exhausted.
func shouldContinue(ec *state.ExecutionContext, cfg Config) bool {
	if ec.HasFinalAnswer() {
		return false
	}
	if cfg.MaxIterations > 0 && ec.Iteration >= cfg.MaxIterations {
		return false
	}
	if cfg.MaxTokens > 0 && ec.TokensUsed >= cfg.MaxTokens {
		return false
	}
	return true
}
