package pagesense

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesense-ai/pagesense/core"
	"github.com/pagesense-ai/pagesense/llm"
	"github.com/pagesense-ai/pagesense/store"
)

func TestNewRegistersBuiltins(t *testing.T) {
	p := New(llm.NewMock())
	assert.Len(t, p.Registry().All(), 3)

	p = New(llm.NewMock(), func(o *Options) { o.SkipBuiltins = true })
	assert.Empty(t, p.Registry().All())
}

func TestFacadeRunsDirectAnswerTurn(t *testing.T) {
	mock := llm.NewMock().
		QueueJSON(`{"intent":"greet","needs_tools":false,"plan":["reply"],"estimated_tools":[]}`, nil).
		QueueText("Hello there!", nil)

	p := New(mock)
	s := p.Store().(*store.InMemory)
	s.SeedConversation("c1", "u1")
	require.NoError(t, s.UpdateConversationSummary(context.Background(), "c1", "warmup"))
	for _, pref := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertMemory(context.Background(), &store.MemoryItem{
			UserID: "u1", Type: store.MemoryPreference, Content: pref, Importance: 0.5,
		}))
	}

	r := p.ReasonerFor("u1", "c1")
	turn := core.NewTurn("u1", "c1", "hi")
	require.NoError(t, s.CreateTurn(context.Background(), turn))

	emit := make(chan core.Event, 16)
	tc := core.NewTurnContext(context.Background(), turn, "", nil, emit, nil)
	require.NoError(t, r.Run(tc))
	close(emit)

	var sawAnswer bool
	for ev := range emit {
		if ev.Type == core.EventAnswer {
			sawAnswer = true
			assert.Equal(t, "Hello there!", ev.Data["content"])
		}
	}
	assert.True(t, sawAnswer)
	assert.Equal(t, core.TurnCompleted, turn.Status)
}
