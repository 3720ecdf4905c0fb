package pattern

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/llm"
	"github.com/praxis-dev/praxis/internal/state"
)

// Literal response markers the ReAct prompt asks for and the parser splits on.
const (
	markerThought = "Thought:"
	markerAction  = "Action:"
	markerFinal   = "Final Answer:"
)

// ReAct is the Reason-Act-Observe strategy: the model alternates between
// thinking, invoking tools and observing results until it produces a final
// answer.
type ReAct struct {
	client    llm.Completer
	cfg       Config
	toolsDesc string
	logger    *zap.Logger
}

// NewReAct builds a ReAct pattern. toolsDesc is the rendered tool catalog
// embedded into the prompt (see tools.Registry.Describe).
func NewReAct(client llm.Completer, cfg Config, toolsDesc string, logger *zap.Logger) *ReAct {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReAct{
		client:    client,
		cfg:       cfg.clone(),
		toolsDesc: toolsDesc,
		logger:    logger,
	}
}

func (p *ReAct) Name() string { return "react" }

func (p *ReAct) Config() Config { return p.cfg.clone() }

func (p *ReAct) ShouldContinue(ec *state.ExecutionContext) bool {
	return shouldContinue(ec, p.cfg)
}

// FormatPrompt renders the system instructions, embedding the available tools
// and the literal markers ParseResponse splits on.
func (p *ReAct) FormatPrompt(query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer the following by reasoning step by step and using tools when needed.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Available tools:\n")
	if p.toolsDesc != "" {
		b.WriteString(p.toolsDesc)
	} else {
		b.WriteString("(none)\n")
	}
	b.WriteString("\nRespond using exactly this format:\n")
	b.WriteString("Thought: your reasoning about what to do next\n")
	b.WriteString(`Action: {"tool": "<tool_name>", "args": {<json arguments>}}` + "\n")
	if p.cfg.ParallelActions {
		b.WriteString("To run several independent tools at once, pass a JSON array of actions instead.\n")
	}
	b.WriteString("\nWhen you know the answer, respond with:\n")
	b.WriteString("Final Answer: the answer\n")
	return b.String()
}

// NextStep formats the conversation so far, calls the LLM and parses the
// response into a reasoning step. The reported token usage rides on the step.
func (p *ReAct) NextStep(ctx context.Context, ec *state.ExecutionContext) (state.ReasoningStep, error) {
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: p.FormatPrompt(ec.Query)},
			{Role: "user", Content: renderTranscript(ec)},
		},
	}

	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return state.ReasoningStep{}, WrapError(KindInternal, p.Name(), "llm completion failed", err)
	}

	step, err := p.ParseResponse(resp.Text)
	if err != nil {
		// Parse failures still consumed tokens; surface them on the error path
		// via a step the caller can inspect alongside the error.
		return state.ReasoningStep{Tokens: resp.Usage.TotalTokens}, err
	}
	step.Tokens = resp.Usage.TotalTokens
	return step, nil
}

// ParseResponse splits the response on the literal Thought/Action/Final
// Answer markers in document order. Input missing all three markers is a
// parse error.
func (p *ReAct) ParseResponse(text string) (state.ReasoningStep, error) {
	idxThought := strings.Index(text, markerThought)
	idxAction := strings.Index(text, markerAction)
	idxFinal := strings.Index(text, markerFinal)

	if idxThought < 0 && idxAction < 0 && idxFinal < 0 {
		return state.ReasoningStep{}, NewError(KindParse, p.Name(),
			"response contains none of Thought:/Action:/Final Answer:")
	}

	thought := ""
	if idxThought >= 0 {
		end := len(text)
		for _, idx := range []int{idxAction, idxFinal} {
			if idx > idxThought && idx < end {
				end = idx
			}
		}
		thought = strings.TrimSpace(text[idxThought+len(markerThought) : end])
	}

	// Final answer wins when it precedes any action in document order.
	if idxFinal >= 0 && (idxAction < 0 || idxFinal < idxAction) {
		answer := strings.TrimSpace(text[idxFinal+len(markerFinal):])
		return state.ReasoningStep{
			Type:        state.StepFinalAnswer,
			Thought:     thought,
			FinalAnswer: answer,
		}, nil
	}

	if idxAction >= 0 {
		end := len(text)
		if idxFinal > idxAction {
			end = idxFinal
		}
		segment := strings.TrimSpace(text[idxAction+len(markerAction) : end])
		return p.parseActionSegment(segment, thought)
	}

	return state.ReasoningStep{Type: state.StepThought, Thought: thought}, nil
}

// parseActionSegment decodes the JSON following an Action: marker. A single
// object is one action; an array fans out as parallel actions when the
// pattern is configured for them.
func (p *ReAct) parseActionSegment(segment, thought string) (state.ReasoningStep, error) {
	dec := json.NewDecoder(strings.NewReader(segment))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return state.ReasoningStep{}, WrapError(KindParse, p.Name(),
			fmt.Sprintf("invalid action JSON: %.80s", segment), err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var reqs []state.ActionRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return state.ReasoningStep{}, WrapError(KindParse, p.Name(), "invalid parallel action JSON", err)
		}
		if len(reqs) == 0 {
			return state.ReasoningStep{}, NewError(KindParse, p.Name(), "empty action array")
		}
		for _, r := range reqs {
			if r.Tool == "" {
				return state.ReasoningStep{}, NewError(KindParse, p.Name(), "action missing tool name")
			}
		}
		if len(reqs) == 1 {
			return state.ReasoningStep{Type: state.StepAction, Thought: thought, Action: &reqs[0]}, nil
		}
		if !p.cfg.ParallelActions {
			p.logger.Warn("Parallel actions requested but disabled, executing first only",
				zap.Int("requested", len(reqs)),
			)
			return state.ReasoningStep{Type: state.StepAction, Thought: thought, Action: &reqs[0]}, nil
		}
		return state.ReasoningStep{Type: state.StepParallelActions, Thought: thought, Parallel: reqs}, nil
	}

	var req state.ActionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return state.ReasoningStep{}, WrapError(KindParse, p.Name(), "invalid action JSON", err)
	}
	if req.Tool == "" {
		return state.ReasoningStep{}, NewError(KindParse, p.Name(), "action missing tool name")
	}
	return state.ReasoningStep{Type: state.StepAction, Thought: thought, Action: &req}, nil
}

// renderTranscript flattens the execution history into the user turn so the
// model sees its own prior thoughts and observations.
func renderTranscript(ec *state.ExecutionContext) string {
	if len(ec.History) == 0 {
		return "Begin."
	}

	var b strings.Builder
	for _, entry := range ec.History {
		switch entry.Kind {
		case state.EntryThought:
			fmt.Fprintf(&b, "Thought: %s\n", entry.Content)
		case state.EntryObservation:
			if entry.Action != nil {
				fmt.Fprintf(&b, "Action: %s\n", entry.Action.Tool)
			}
			fmt.Fprintf(&b, "Observation: %s\n", entry.Content)
		case state.EntryFinalAnswer:
			fmt.Fprintf(&b, "Final Answer: %s\n", entry.Content)
		case state.EntryExtension:
			fmt.Fprintf(&b, "Note: %s\n", entry.Content)
		}
	}
	b.WriteString("\nContinue.")
	return b.String()
}
