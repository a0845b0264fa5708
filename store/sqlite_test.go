package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesense-ai/pagesense/core"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "pagesense.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteConversationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateConversation(ctx, &Conversation{ID: "c1", UserID: "u1"}))
	c, err := db.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)

	require.NoError(t, db.UpdateConversationSummary(ctx, "c1", "读书笔记"))
	c, err = db.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "读书笔记", c.Summary)

	_, err = db.GetConversation(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateConversationSummary(ctx, "nope", "x"), ErrNotFound)
}

func TestSQLiteRecentMessagesOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateConversation(ctx, &Conversation{ID: "c1", UserID: "u1"}))

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		require.NoError(t, db.AppendMessage(ctx, &Message{
			ConversationID: "c1", Role: "user", Content: string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := db.RecentMessages(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// Chronological order, most recent window.
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "d", msgs[1].Content)
}

func TestSQLiteTurnRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	turn := core.NewTurn("u1", "c1", "what is flow state?")
	turn.Plan = &core.Plan{Intent: "lookup", NeedsTools: true, Steps: []string{"search"}, EstimatedTools: []string{"search_concepts"}}
	require.NoError(t, db.CreateTurn(ctx, turn))

	require.NoError(t, turn.Transition(core.TurnExecuting))
	turn.AppendStep(core.ReActStep{Thought: "search first", Action: "search_concepts",
		ActionInput: map[string]any{"query": "flow"}, Observation: "3 hits"})
	require.NoError(t, turn.Transition(core.TurnCompleted))
	turn.Result = "Flow is deep absorption in a task."
	require.NoError(t, db.UpdateTurn(ctx, turn))

	got, err := db.GetTurn(ctx, turn.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TurnCompleted, got.Status)
	assert.Equal(t, 1, got.Iterations)
	require.NotNil(t, got.Plan)
	assert.True(t, got.Plan.NeedsTools)
	require.Len(t, got.ExecutionHistory, 1)
	assert.Equal(t, "search_concepts", got.ExecutionHistory[0].Action)
}

func TestSQLiteToolInvocationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	inv := core.NewToolInvocation("t1", "lookup_vocabulary", map[string]any{"word": "ubiquitous"})
	require.NoError(t, db.CreateToolInvocation(ctx, inv))
	inv.Finish(core.InvocationTimeout, nil, "TIMEOUT")
	require.NoError(t, db.UpdateToolInvocation(ctx, inv))
	assert.ErrorIs(t, db.UpdateToolInvocation(ctx, &core.ToolInvocation{ID: "nope"}), ErrNotFound)
}

func TestSQLiteMemoryQueryRanking(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	items := []*MemoryItem{
		{UserID: "u1", Type: MemoryKnowledge, Content: "Flow state by Csikszentmihalyi", Importance: 0.9, AccessCount: 2, UpdatedAt: now.Add(-time.Minute)},
		{UserID: "u1", Type: MemoryKnowledge, Content: "flow requires clear goals", Importance: 0.9, AccessCount: 7, UpdatedAt: now.Add(-2 * time.Minute)},
		{UserID: "u1", Type: MemoryKnowledge, Content: "flow but expired", Importance: 1.0, ExpiresAt: &past, UpdatedAt: now},
		{UserID: "u2", Type: MemoryKnowledge, Content: "flow for another user", Importance: 1.0, UpdatedAt: now},
	}
	for _, it := range items {
		require.NoError(t, db.InsertMemory(ctx, it))
	}

	got, err := db.QueryMemories(ctx, "u1", MemoryFilter{
		Contains: "Flow", Unexpired: true, Order: OrderByRelevance, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "flow requires clear goals", got[0].Content)

	require.NoError(t, db.TouchMemory(ctx, got[1].ID))
	refreshed, err := db.QueryMemories(ctx, "u1", MemoryFilter{Type: MemoryKnowledge, Contains: "Csikszentmihalyi"})
	require.NoError(t, err)
	require.Len(t, refreshed, 1)
	assert.Equal(t, 3, refreshed[0].AccessCount)
}

func TestSQLiteAccessChecks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateConversation(ctx, &Conversation{ID: "c1", UserID: "u1"}))
	_, err := db.db.ExecContext(ctx, `INSERT INTO documents (id, user_id) VALUES ('d1', 'u1')`)
	require.NoError(t, err)

	ok, err := db.CheckConversationAccess(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = db.CheckConversationAccess(ctx, "intruder", "c1")
	assert.False(t, ok)
	ok, _ = db.CheckDocumentAccess(ctx, "u1", "d1")
	assert.True(t, ok)
}
