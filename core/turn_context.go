package core

import (
	"context"

	"github.com/pagesense-ai/pagesense/logging"
)

// QueryContext is the optional client-supplied context attached to a query
// frame: the active document, a text selection, a referenced message.
type QueryContext struct {
	Type         string         `json:"type,omitempty"`
	DocumentInfo map[string]any `json:"document_info,omitempty"`
	Selection    string         `json:"selection,omitempty"`
	MessageID    string         `json:"message_id,omitempty"`
}

// TurnContext carries the per-turn execution scope handed to the reasoner:
// the cancellation context, identifiers, the user query with its client
// context, and the emission channel the conductor drains. Services (store,
// LLM, tools, memory) belong to the reasoner, not the turn.
type TurnContext struct {
	Context        context.Context
	Turn           *Turn
	UserID         string
	ConversationID string
	DocumentID     string
	Query          string
	ClientContext  *QueryContext
	Emit           chan<- Event

	logger logging.Logger
}

// NewTurnContext binds a turn to its cancellation context and event sink.
func NewTurnContext(
	ctx context.Context,
	turn *Turn,
	documentID string,
	clientCtx *QueryContext,
	emit chan<- Event,
	logger logging.Logger,
) *TurnContext {
	return &TurnContext{
		Context:        ctx,
		Turn:           turn,
		UserID:         turn.UserID,
		ConversationID: turn.ConversationID,
		DocumentID:     documentID,
		Query:          turn.Query,
		ClientContext:  clientCtx,
		Emit:           emit,
		logger:         logging.OrNoOp(logger),
	}
}

// Done returns a channel closed when the turn is cancelled.
func (tc *TurnContext) Done() <-chan struct{} { return tc.Context.Done() }

// Err returns the cancellation error, if any.
func (tc *TurnContext) Err() error { return tc.Context.Err() }

// Logger returns the turn-scoped logger.
func (tc *TurnContext) Logger() logging.Logger { return tc.logger }

// EmitEvent sends ev to the conductor unless the turn has been cancelled.
// It reports whether the event was delivered; events for one turn are
// delivered FIFO because the reasoner is the only producer.
func (tc *TurnContext) EmitEvent(ev Event) bool {
	select {
	case <-tc.Context.Done():
		return false
	case tc.Emit <- ev:
		return true
	}
}
