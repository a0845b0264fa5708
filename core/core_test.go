package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnTransitions(t *testing.T) {
	turn := NewTurn("u1", "c1", "hello")
	assert.Equal(t, TurnPlanning, turn.Status)

	require.NoError(t, turn.Transition(TurnExecuting))
	require.NoError(t, turn.Transition(TurnCompleted))
	assert.True(t, turn.Status.Terminal())
	assert.GreaterOrEqual(t, turn.ElapsedMS, int64(0))

	// Terminal turns are never resumed.
	assert.Error(t, turn.Transition(TurnExecuting))
	assert.Error(t, turn.Transition(TurnFailed))
}

func TestTurnTransitionBackwards(t *testing.T) {
	turn := NewTurn("u1", "c1", "q")
	require.NoError(t, turn.Transition(TurnExecuting))
	assert.Error(t, turn.Transition(TurnPlanning))
	// Re-entering the same state is a no-op.
	assert.NoError(t, turn.Transition(TurnExecuting))
}

func TestTurnCancelledFromPlanning(t *testing.T) {
	turn := NewTurn("u1", "c1", "q")
	require.NoError(t, turn.Transition(TurnCancelled))
	assert.Equal(t, 0, turn.Iterations)
}

func TestAppendStepTracksIterations(t *testing.T) {
	turn := NewTurn("u1", "c1", "q")
	turn.AppendStep(ReActStep{Thought: "a", Action: "t", Observation: "o"})
	turn.AppendStep(ReActStep{Thought: "b", Observation: ""})
	assert.Equal(t, 2, turn.Iterations)
	assert.Len(t, turn.ExecutionHistory, 2)
}

func TestInvocationFinish(t *testing.T) {
	inv := NewToolInvocation("turn-1", "search_concepts", map[string]any{"query": "x"})
	assert.Equal(t, InvocationPending, inv.Status)
	inv.Finish(InvocationSuccess, []string{"hit"}, "")
	assert.True(t, inv.Status.Terminal())
	assert.False(t, inv.FinishedAt.Before(inv.StartedAt))
}

func TestEventMarshalFlattensPayload(t *testing.T) {
	ev := NewObservationEvent("找到 3 条结果", true)
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "observation", obj["type"])
	assert.Equal(t, "找到 3 条结果", obj["content"])
	assert.Equal(t, true, obj["success"])
}

func TestEventRoundTrip(t *testing.T) {
	ev := NewErrorEvent("empty_content", "query content is empty")
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, EventError, back.Type)
	assert.Equal(t, "empty_content", back.Data["code"])
}

func TestTurnContextEmitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emit := make(chan Event) // unbuffered: would block without a reader
	turn := NewTurn("u1", "c1", "q")
	tc := NewTurnContext(ctx, turn, "", nil, emit, nil)

	cancel()
	assert.False(t, tc.EmitEvent(NewInfoEvent("late")))
}

func TestDefaultPlan(t *testing.T) {
	p := DefaultPlan()
	assert.False(t, p.NeedsTools)
	assert.Equal(t, "unknown", p.Intent)
	assert.Equal(t, []string{"answer directly"}, p.Steps)
	assert.Empty(t, p.EstimatedTools)
}
