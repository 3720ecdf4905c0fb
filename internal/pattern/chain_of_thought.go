package pattern

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/llm"
	"github.com/praxis-dev/praxis/internal/state"
)

// ChainOfThought is the pure step-by-step reasoning strategy. It never emits
// actions; it loops on thoughts until the model produces a Final Answer: or
// the iteration budget runs out.
type ChainOfThought struct {
	client llm.Completer
	cfg    Config
	logger *zap.Logger
}

// NewChainOfThought builds a chain-of-thought pattern.
func NewChainOfThought(client llm.Completer, cfg Config, logger *zap.Logger) *ChainOfThought {
	if logger == nil {
		logger = zap.NewNop()
	}
	// This strategy has no actions to parallelize.
	cfg.ParallelActions = false
	return &ChainOfThought{client: client, cfg: cfg.clone(), logger: logger}
}

func (p *ChainOfThought) Name() string { return "chain_of_thought" }

func (p *ChainOfThought) Config() Config { return p.cfg.clone() }

func (p *ChainOfThought) ShouldContinue(ec *state.ExecutionContext) bool {
	return shouldContinue(ec, p.cfg)
}

// FormatPrompt guides the model through explicit reasoning steps before a
// conclusion.
func (p *ChainOfThought) FormatPrompt(query string) string {
	return fmt.Sprintf(`Solve this step-by-step:

Question: %s

Think through this systematically:
1. Identify what is being asked
2. Break the problem into steps
3. Work through each step with clear reasoning
4. Arrive at the conclusion

Continue your reasoning one step at a time. When you reach the conclusion,
end with "Final Answer:" followed by your answer.`, query)
}

func (p *ChainOfThought) NextStep(ctx context.Context, ec *state.ExecutionContext) (state.ReasoningStep, error) {
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: p.FormatPrompt(ec.Query)},
			{Role: "user", Content: renderThoughts(ec)},
		},
	}

	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return state.ReasoningStep{}, WrapError(KindInternal, p.Name(), "llm completion failed", err)
	}

	step, err := p.ParseResponse(resp.Text)
	if err != nil {
		return state.ReasoningStep{Tokens: resp.Usage.TotalTokens}, err
	}
	step.Tokens = resp.Usage.TotalTokens
	return step, nil
}

// ParseResponse yields a FinalAnswer step once the Final Answer: marker
// appears, a Thought step otherwise. Actions are never produced.
func (p *ChainOfThought) ParseResponse(text string) (state.ReasoningStep, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return state.ReasoningStep{}, NewError(KindParse, p.Name(), "empty response")
	}

	if idx := strings.Index(trimmed, markerFinal); idx >= 0 {
		thought := strings.TrimSpace(strings.TrimPrefix(
			strings.TrimSpace(trimmed[:idx]), markerThought))
		return state.ReasoningStep{
			Type:        state.StepFinalAnswer,
			Thought:     thought,
			FinalAnswer: strings.TrimSpace(trimmed[idx+len(markerFinal):]),
		}, nil
	}

	thought := strings.TrimSpace(strings.TrimPrefix(trimmed, markerThought))
	return state.ReasoningStep{Type: state.StepThought, Thought: thought}, nil
}

func renderThoughts(ec *state.ExecutionContext) string {
	if len(ec.History) == 0 {
		return "Begin your reasoning."
	}

	var b strings.Builder
	b.WriteString("Your reasoning so far:\n")
	for _, entry := range ec.History {
		if entry.Kind == state.EntryThought {
			fmt.Fprintf(&b, "- %s\n", entry.Content)
		}
	}
	b.WriteString("\nContinue with the next step.")
	return b.String()
}
