package conductor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesense-ai/pagesense/agent"
	"github.com/pagesense-ai/pagesense/conductor"
	"github.com/pagesense-ai/pagesense/core"
	"github.com/pagesense-ai/pagesense/llm"
	"github.com/pagesense-ai/pagesense/memory"
	"github.com/pagesense-ai/pagesense/store"
	"github.com/pagesense-ai/pagesense/tool"
)

// gatedClient blocks structured calls until the gate opens, so tests can
// hold a turn in flight deterministically.
type gatedClient struct {
	inner *llm.Mock
	gate  chan struct{}
}

func (g *gatedClient) Generate(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	return g.inner.Generate(ctx, req)
}

func (g *gatedClient) GenerateJSON(ctx context.Context, req llm.Request) (*llm.JSONCompletion, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.GenerateJSON(ctx, req)
}

type fixture struct {
	server *httptest.Server
	store  *store.InMemory
	mock   *llm.Mock
}

func newFixture(t *testing.T, client llm.Client) *fixture {
	t.Helper()
	s := store.NewInMemory()
	s.SeedConversation("c1", "u1")
	s.SeedDocument("d1", "u1")

	// Stored preferences and a summary keep memory retrieval off the LLM.
	for _, pref := range []string{"short answers", "reads fiction", "evening reader"} {
		require.NoError(t, s.InsertMemory(context.Background(), &store.MemoryItem{
			UserID: "u1", Type: store.MemoryPreference, Content: pref, Importance: 0.9,
		}))
	}
	require.NoError(t, s.UpdateConversationSummary(context.Background(), "c1", "ongoing reading session"))

	reg := tool.NewRegistry(nil)
	sup := tool.NewSupervisor(reg)
	factory := func(userID, conversationID string) *agent.Reasoner {
		mem := memory.NewManager(s, client, userID, conversationID)
		return agent.NewReasoner(s, client, reg, sup, mem)
	}

	auth := conductor.StaticAuthenticator{"tok-u1": "u1", "tok-u2": "u2"}
	h := conductor.NewHandler(s, auth, factory)

	mux := http.NewServeMux()
	mux.Handle("/ws/agent/", h)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mock, _ := client.(*llm.Mock)
	return &fixture{server: server, store: s, mock: mock}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) core.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev core.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)
}

func TestAttachSendsConnected(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")

	ev := readEvent(t, conn)
	assert.Equal(t, core.EventConnected, ev.Type)
	assert.Equal(t, "c1", ev.Data["conversation_id"])
	assert.Equal(t, "u1", ev.Data["user_id"])
}

func TestAttachUnauthorized(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=wrong")
	expectClose(t, conn, conductor.CloseUnauthorized)
}

func TestAttachMissingConversationID(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/?token=tok-u1")
	expectClose(t, conn, conductor.CloseBadRequest)
}

func TestAttachForbidden(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u2")
	expectClose(t, conn, conductor.CloseForbidden)
}

func TestPingPong(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn) // connected

	send(t, conn, map[string]any{"type": "ping"})
	ev := readEvent(t, conn)
	assert.Equal(t, core.EventPong, ev.Type)
	ts, ok := ev.Data["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
}

func TestEmptyQueryContent(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn)

	send(t, conn, map[string]any{"type": "query", "content": "   "})
	ev := readEvent(t, conn)
	assert.Equal(t, core.EventError, ev.Type)
	assert.Equal(t, conductor.CodeEmptyContent, ev.Data["code"])

	// No turn record was created.
	msgs, err := f.store.RecentMessages(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestUnknownMessageType(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn)

	send(t, conn, map[string]any{"type": "telepathy"})
	ev := readEvent(t, conn)
	assert.Equal(t, core.EventError, ev.Type)
	assert.Equal(t, conductor.CodeUnknownMessageType, ev.Data["code"])
}

func TestInvalidJSONFrame(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readEvent(t, conn)
	assert.Equal(t, core.EventError, ev.Type)
	assert.Equal(t, conductor.CodeInvalidJSON, ev.Data["code"])
}

func TestCancelWithoutTask(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn)

	send(t, conn, map[string]any{"type": "cancel"})
	ev := readEvent(t, conn)
	assert.Equal(t, core.EventInfo, ev.Type)
	assert.Equal(t, "no task", ev.Data["message"])
}

func TestSetDocument(t *testing.T) {
	f := newFixture(t, llm.NewMock())
	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn)

	send(t, conn, map[string]any{"type": "set_document", "document_id": "d1"})
	ev := readEvent(t, conn)
	assert.Equal(t, core.EventDocumentSet, ev.Type)
	assert.Equal(t, "d1", ev.Data["document_id"])

	send(t, conn, map[string]any{"type": "set_document", "document_id": "d-other"})
	ev = readEvent(t, conn)
	assert.Equal(t, core.EventError, ev.Type)
	assert.Equal(t, conductor.CodeDocumentAccessDenied, ev.Data["code"])

	send(t, conn, map[string]any{"type": "set_document"})
	ev = readEvent(t, conn)
	assert.Equal(t, core.EventError, ev.Type)
	assert.Equal(t, conductor.CodeMissingDocumentID, ev.Data["code"])
}

func TestDirectAnswerOverWebsocket(t *testing.T) {
	mock := llm.NewMock().
		QueueJSON(`{"intent":"greet","needs_tools":false,"plan":["reply"],"estimated_tools":[]}`, nil).
		QueueText("Hi!", &llm.TokenUsage{PromptTokens: 5, CompletionTokens: 2})
	f := newFixture(t, mock)

	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn)

	send(t, conn, map[string]any{"type": "query", "content": "hello"})

	var types []core.EventType
	for {
		ev := readEvent(t, conn)
		types = append(types, ev.Type)
		if ev.Type == core.EventAnswer {
			assert.Equal(t, "Hi!", ev.Data["content"])
			break
		}
	}
	assert.Equal(t, []core.EventType{
		core.EventState, core.EventState, core.EventPlan, core.EventAnswer,
	}, types)

	// Both sides of the exchange end up persisted.
	require.Eventually(t, func() bool {
		msgs, err := f.store.RecentMessages(context.Background(), "c1", 10)
		return err == nil && len(msgs) == 2
	}, 3*time.Second, 20*time.Millisecond)

	msgs, err := f.store.RecentMessages(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "Hi!", msgs[1].Content)
}

func TestAlreadyProcessingAndCancel(t *testing.T) {
	gate := make(chan struct{})
	mock := llm.NewMock()
	client := &gatedClient{inner: mock, gate: gate}
	f := newFixture(t, client)

	conn := f.dial(t, "/ws/agent/c1?token=tok-u1")
	readEvent(t, conn) // connected

	send(t, conn, map[string]any{"type": "query", "content": "slow question"})
	assert.Equal(t, core.EventState, readEvent(t, conn).Type) // loading_memory
	assert.Equal(t, core.EventState, readEvent(t, conn).Type) // planning

	// Second query while the first is parked inside planning.
	send(t, conn, map[string]any{"type": "query", "content": "another"})
	ev := readEvent(t, conn)
	assert.Equal(t, core.EventError, ev.Type)
	assert.Equal(t, conductor.CodeAlreadyProcessing, ev.Data["code"])

	send(t, conn, map[string]any{"type": "cancel"})
	ev = readEvent(t, conn)
	assert.Equal(t, core.EventCancelled, ev.Type)

	// The session accepts new work after cancellation.
	close(gate)
	mock.
		QueueJSON(`{"intent":"greet","needs_tools":false,"plan":["reply"],"estimated_tools":[]}`, nil).
		QueueText("recovered", nil)
	send(t, conn, map[string]any{"type": "query", "content": "try again"})
	for {
		ev = readEvent(t, conn)
		if ev.Type == core.EventAnswer {
			assert.Equal(t, "recovered", ev.Data["content"])
			break
		}
	}
}
