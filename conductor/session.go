package conductor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagesense-ai/pagesense/agent"
	"github.com/pagesense-ai/pagesense/core"
	"github.com/pagesense-ai/pagesense/logging"
	"github.com/pagesense-ai/pagesense/store"
)

// inboundFrame is the shape of every client frame; fields beyond type are
// populated per frame kind.
type inboundFrame struct {
	Type       string             `json:"type"`
	Content    string             `json:"content,omitempty"`
	Context    *core.QueryContext `json:"context,omitempty"`
	DocumentID string             `json:"document_id,omitempty"`
}

// session drives one attached client. Frames are handled on the read loop;
// at most one turn is in flight at a time, running in its own goroutine and
// emitting onto the shared outbound channel.
type session struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan core.Event
	ctx     context.Context
	cancel  context.CancelFunc

	userID         string
	conversationID string
	documentID     string
	reasoner       *agent.Reasoner
	logger         logging.Logger

	mu         sync.Mutex
	turnCancel context.CancelFunc
	turnDone   chan struct{}
}

func (s *session) run() {
	defer s.close()
	go s.writeLoop()
	s.emit(core.NewConnectedEvent(s.conversationID, s.userID))
	s.readLoop()
}

func (s *session) close() {
	s.cancelTurn()
	s.cancel()
	_ = s.conn.Close()
	s.logger.Info("conductor.detach", "conversation_id", s.conversationID)
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(wsMaxPayloadBytes)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.emit(core.NewErrorEvent(CodeInvalidJSON, "frame is not valid JSON"))
			continue
		}
		s.dispatch(&frame)
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.send:
			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(ev); err != nil {
				s.logger.Error("conductor.event.encode_failed", "type", ev.Type, "error", err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
				return
			}
		}
	}
}

// emit queues an event for the writer, giving up when the session is gone.
func (s *session) emit(ev core.Event) {
	select {
	case s.send <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) dispatch(frame *inboundFrame) {
	switch frame.Type {
	case "query":
		s.handleQuery(frame)
	case "cancel":
		s.handleCancel()
	case "set_document":
		s.handleSetDocument(frame)
	case "ping":
		s.emit(core.NewPongEvent())
	default:
		s.emit(core.NewErrorEvent(CodeUnknownMessageType, "unknown message type: "+frame.Type))
	}
}

func (s *session) handleQuery(frame *inboundFrame) {
	if s.turnInFlight() {
		s.emit(core.NewErrorEvent(CodeAlreadyProcessing, "a query is already being processed"))
		return
	}
	content := strings.TrimSpace(frame.Content)
	if content == "" {
		s.emit(core.NewErrorEvent(CodeEmptyContent, "query content is empty"))
		return
	}

	if err := s.handler.store.AppendMessage(s.ctx, &store.Message{
		ConversationID: s.conversationID,
		Role:           "user",
		Content:        content,
	}); err != nil {
		s.logger.Error("conductor.query.persist_failed", "error", err)
		s.emit(core.NewErrorEvent(CodeQueryError, "could not start the query"))
		return
	}

	turn := core.NewTurn(s.userID, s.conversationID, content)
	if err := s.handler.store.CreateTurn(s.ctx, turn); err != nil {
		s.logger.Error("conductor.turn.create_failed", "error", err)
		s.emit(core.NewErrorEvent(CodeQueryError, "could not start the query"))
		return
	}

	turnCtx, turnCancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.turnCancel = turnCancel
	s.turnDone = done
	s.mu.Unlock()

	tc := core.NewTurnContext(turnCtx, turn, s.documentID, frame.Context, s.send, s.logger)
	go func() {
		defer close(done)
		defer turnCancel()
		s.runTurn(tc)
	}()
}

// runTurn executes the reasoner and translates its outcome into the final
// session events and persistence.
func (s *session) runTurn(tc *core.TurnContext) {
	turn := tc.Turn
	err := s.reasoner.Run(tc)

	switch {
	case err == nil:
		if turn.Status == core.TurnCompleted && turn.Result != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.handler.store.AppendMessage(ctx, &store.Message{
				ConversationID: s.conversationID,
				Role:           "assistant",
				Content:        turn.Result,
			}); err != nil {
				s.logger.Error("conductor.answer.persist_failed", "turn_id", turn.ID, "error", err)
			}
		}
	case errors.Is(err, context.Canceled):
		s.emit(core.NewCancelledEvent("task cancelled"))
	default:
		s.logger.Error("conductor.turn.failed", "turn_id", turn.ID, "error", err)
		s.emit(core.NewErrorEvent(CodeExecutionError, "query execution failed"))
		if !turn.Status.Terminal() {
			turn.Error = err.Error()
			if terr := turn.Transition(core.TurnFailed); terr != nil {
				s.logger.Error("conductor.turn.transition_failed", "turn_id", turn.ID, "error", terr)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if uerr := s.handler.store.UpdateTurn(ctx, turn); uerr != nil {
				s.logger.Error("conductor.turn.persist_failed", "turn_id", turn.ID, "error", uerr)
			}
		}
	}
}

func (s *session) handleCancel() {
	if s.cancelTurn() {
		return
	}
	s.emit(core.NewInfoEvent("no task"))
}

// cancelTurn cancels the in-flight turn if there is one. The cancelled
// event itself is emitted by the turn goroutine, exactly once.
func (s *session) cancelTurn() bool {
	s.mu.Lock()
	cancel := s.turnCancel
	done := s.turnDone
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
	}
	cancel()
	return true
}

func (s *session) turnInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnDone == nil {
		return false
	}
	select {
	case <-s.turnDone:
		return false
	default:
		return true
	}
}

func (s *session) handleSetDocument(frame *inboundFrame) {
	if frame.DocumentID == "" {
		s.emit(core.NewErrorEvent(CodeMissingDocumentID, "document_id is required"))
		return
	}
	ok, err := s.handler.store.CheckDocumentAccess(s.ctx, s.userID, frame.DocumentID)
	if err != nil {
		s.logger.Error("conductor.set_document.failed", "document_id", frame.DocumentID, "error", err)
		s.emit(core.NewErrorEvent(CodeSetDocumentError, "could not verify document access"))
		return
	}
	if !ok {
		s.emit(core.NewErrorEvent(CodeDocumentAccessDenied, "no access to document"))
		return
	}
	s.documentID = frame.DocumentID
	s.emit(core.NewDocumentSetEvent(frame.DocumentID))
}
