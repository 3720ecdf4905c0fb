package pattern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/state"
)

func TestChainOfThought_ParseThought(t *testing.T) {
	p := NewChainOfThought(&scriptedLLM{responses: []string{""}}, DefaultConfig(), zap.NewNop())

	step, err := p.ParseResponse("First, the problem asks for the sum of the series.")
	require.NoError(t, err)
	assert.Equal(t, state.StepThought, step.Type)
	assert.NotEmpty(t, step.Thought)
}

func TestChainOfThought_ParseFinalAnswer(t *testing.T) {
	p := NewChainOfThought(&scriptedLLM{responses: []string{""}}, DefaultConfig(), zap.NewNop())

	step, err := p.ParseResponse("The series telescopes.\nFinal Answer: 1/2")
	require.NoError(t, err)
	assert.Equal(t, state.StepFinalAnswer, step.Type)
	assert.Equal(t, "1/2", step.FinalAnswer)
}

func TestChainOfThought_NeverEmitsActions(t *testing.T) {
	p := NewChainOfThought(&scriptedLLM{responses: []string{""}}, DefaultConfig(), zap.NewNop())

	// Even action-shaped text is treated as a plain thought.
	step, err := p.ParseResponse(`Action: {"tool": "read_file"}`)
	require.NoError(t, err)
	assert.Equal(t, state.StepThought, step.Type)
}

func TestChainOfThought_EmptyResponseIsParseError(t *testing.T) {
	p := NewChainOfThought(&scriptedLLM{responses: []string{""}}, DefaultConfig(), zap.NewNop())

	_, err := p.ParseResponse("   \n ")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindParse))
}

func TestChainOfThought_LoopsOnThoughtsUntilFinal(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		"Step one of the reasoning.",
		"Step two of the reasoning.",
		"Final Answer: done",
	}}
	p := NewChainOfThought(client, DefaultConfig(), zap.NewNop())
	ec := state.NewExecutionContext("q", nil)

	for i := 0; i < 2; i++ {
		step, err := p.NextStep(context.Background(), ec)
		require.NoError(t, err)
		assert.Equal(t, state.StepThought, step.Type)
		ec.AddThought(step.Thought)
		ec.Iteration++
	}

	step, err := p.NextStep(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, state.StepFinalAnswer, step.Type)
	assert.Equal(t, "done", step.FinalAnswer)
}

func TestChainOfThought_ParallelAlwaysDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParallelActions = true
	p := NewChainOfThought(&scriptedLLM{responses: []string{""}}, cfg, nil)
	assert.False(t, p.Config().ParallelActions)
}

func TestRegistry_RegisterGetSelect(t *testing.T) {
	reg := NewRegistry()
	react := NewReAct(&scriptedLLM{responses: []string{""}}, DefaultConfig(), "", nil)
	cot := NewChainOfThought(&scriptedLLM{responses: []string{""}}, DefaultConfig(), nil)
	require.NoError(t, reg.Register(react))
	require.NoError(t, reg.Register(cot))

	got, err := reg.Get("chain_of_thought")
	require.NoError(t, err)
	assert.Equal(t, "chain_of_thought", got.Name())

	_, err = reg.Get("tree_of_thoughts")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))

	// explicit hint
	p, err := reg.SelectForQuery("q", map[string]interface{}{"pattern": "chain_of_thought"})
	require.NoError(t, err)
	assert.Equal(t, "chain_of_thought", p.Name())

	// default preference
	p, err = reg.SelectForQuery("q", nil)
	require.NoError(t, err)
	assert.Equal(t, "react", p.Name())
}

func TestRegistry_Empty(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.SelectForQuery("q", nil)
	assert.Error(t, err)
}
