// Package state holds the mutable execution state of one reasoning run and
// the step types exchanged between reasoning patterns and the executor.
package state

import (
	"fmt"
	"time"
)

// StepType tags a ReasoningStep variant.
type StepType string

const (
	StepThought         StepType = "thought"
	StepAction          StepType = "action"
	StepParallelActions StepType = "parallel_actions"
	StepFinalAnswer     StepType = "final_answer"
	StepExtension       StepType = "extension"
)

// ActionRequest names a tool and its arguments.
type ActionRequest struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// ActionResult is the immutable record of one tool call outcome.
type ActionResult struct {
	Tool       string        `json:"tool"`
	Success    bool          `json:"success"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ms,omitempty"`
}

// ExtensionStep is the escape hatch for future strategies: an opaque payload
// interpreted only by the pattern that emitted it.
type ExtensionStep struct {
	Pattern string `json:"pattern"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// ReasoningStep is one unit of pattern output. Exactly one variant field is
// populated, selected by Type. Tokens carries the LLM usage reported
// alongside the step so the executor can account for it.
type ReasoningStep struct {
	Type        StepType        `json:"type"`
	Thought     string          `json:"thought,omitempty"`
	Action      *ActionRequest  `json:"action,omitempty"`
	Parallel    []ActionRequest `json:"parallel,omitempty"`
	FinalAnswer string          `json:"final_answer,omitempty"`
	Extension   *ExtensionStep  `json:"extension,omitempty"`
	Tokens      int             `json:"tokens,omitempty"`
}

// EntryKind tags a history entry.
type EntryKind string

const (
	EntryThought     EntryKind = "thought"
	EntryObservation EntryKind = "observation"
	EntryFinalAnswer EntryKind = "final_answer"
	EntryExtension   EntryKind = "extension"
)

// HistoryEntry is one immutable record in the execution history.
type HistoryEntry struct {
	Kind      EntryKind      `json:"kind"`
	Content   string         `json:"content,omitempty"`
	Action    *ActionRequest `json:"action,omitempty"`
	Result    *ActionResult  `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ExecutionContext is the mutable state of one reasoning run. It has
// single-writer discipline: only the executor driving the session mutates it.
// Patterns receive it read-only.
type ExecutionContext struct {
	Query      string                 `json:"query"`
	History    []HistoryEntry         `json:"history"`
	Iteration  int                    `json:"iteration"`
	TokensUsed int                    `json:"tokens_used"`
	ToolNames  []string               `json:"tool_names"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewExecutionContext creates the context for one session.
func NewExecutionContext(query string, toolNames []string) *ExecutionContext {
	names := make([]string, len(toolNames))
	copy(names, toolNames)
	return &ExecutionContext{
		Query:     query,
		History:   make([]HistoryEntry, 0, 16),
		ToolNames: names,
		Metadata:  make(map[string]interface{}),
	}
}

// AddThought appends a thought entry.
func (ec *ExecutionContext) AddThought(text string) {
	ec.History = append(ec.History, HistoryEntry{
		Kind:      EntryThought,
		Content:   text,
		Timestamp: time.Now(),
	})
}

// AddObservation appends the outcome of one tool call.
func (ec *ExecutionContext) AddObservation(req ActionRequest, res ActionResult) {
	r := res
	a := req
	ec.History = append(ec.History, HistoryEntry{
		Kind:      EntryObservation,
		Content:   observationContent(res),
		Action:    &a,
		Result:    &r,
		Timestamp: time.Now(),
	})
}

// AddFinalAnswer appends the terminal answer entry.
func (ec *ExecutionContext) AddFinalAnswer(text string) {
	ec.History = append(ec.History, HistoryEntry{
		Kind:      EntryFinalAnswer,
		Content:   text,
		Timestamp: time.Now(),
	})
}

// AddExtension records an extension step that was not otherwise interpreted.
func (ec *ExecutionContext) AddExtension(ext ExtensionStep) {
	ec.History = append(ec.History, HistoryEntry{
		Kind:      EntryExtension,
		Content:   fmt.Sprintf("%s/%s: %s", ext.Pattern, ext.Kind, ext.Payload),
		Timestamp: time.Now(),
	})
}

// AddTokens accumulates token usage. Counters are monotonic; negative deltas
// are ignored.
func (ec *ExecutionContext) AddTokens(n int) {
	if n > 0 {
		ec.TokensUsed += n
	}
}

// HasFinalAnswer reports whether history already contains a terminal answer.
func (ec *ExecutionContext) HasFinalAnswer() bool {
	for i := len(ec.History) - 1; i >= 0; i-- {
		if ec.History[i].Kind == EntryFinalAnswer {
			return true
		}
	}
	return false
}

// RecentHistory returns the most recent n entries.
func (ec *ExecutionContext) RecentHistory(n int) []HistoryEntry {
	if len(ec.History) <= n {
		return ec.History
	}
	return ec.History[len(ec.History)-n:]
}

func observationContent(res ActionResult) string {
	if res.Success {
		return res.Output
	}
	return fmt.Sprintf("error: %s", res.Error)
}
