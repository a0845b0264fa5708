package core

import (
	"encoding/json"
	"time"
)

// EventType identifies an outbound event on the session stream.
type EventType string

const (
	// EventConnected acknowledges a successful session attach.
	EventConnected EventType = "connected"
	// EventState reports a reasoner phase change (loading_memory, planning).
	EventState EventType = "state"
	// EventPlan carries the planner output for the turn.
	EventPlan EventType = "plan"
	// EventIteration announces the start of a ReAct iteration.
	EventIteration EventType = "iteration"
	// EventThought carries the model's reasoning text for an iteration.
	EventThought EventType = "thought"
	// EventAction announces a tool dispatch.
	EventAction EventType = "action"
	// EventObservation carries the (truncated) tool outcome.
	EventObservation EventType = "observation"
	// EventAnswer carries the final answer text.
	EventAnswer EventType = "answer"
	// EventCancelled confirms cooperative cancellation of the turn.
	EventCancelled EventType = "cancelled"
	// EventDocumentSet confirms binding a document to the session.
	EventDocumentSet EventType = "document_set"
	// EventPong answers a ping frame.
	EventPong EventType = "pong"
	// EventInfo carries informational notices.
	EventInfo EventType = "info"
	// EventError carries a client-visible error with a code.
	EventError EventType = "error"
)

// Event is one outbound record on the session stream. Payload fields are
// flattened next to "type" on the wire, matching the client protocol.
// After emission an Event is treated as immutable.
type Event struct {
	Type EventType
	Data map[string]any
}

// MarshalJSON flattens the payload next to the type discriminator.
func (e Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		obj[k] = v
	}
	obj["type"] = string(e.Type)
	return json.Marshal(obj)
}

// UnmarshalJSON reverses MarshalJSON, splitting the type discriminator from
// the payload fields.
func (e *Event) UnmarshalJSON(data []byte) error {
	obj := map[string]any{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if t, ok := obj["type"].(string); ok {
		e.Type = EventType(t)
	}
	delete(obj, "type")
	e.Data = obj
	return nil
}

// NewConnectedEvent acknowledges a successful attach.
func NewConnectedEvent(conversationID, userID string) Event {
	return Event{Type: EventConnected, Data: map[string]any{
		"message":         "connected",
		"conversation_id": conversationID,
		"user_id":         userID,
	}}
}

// NewStateEvent reports a reasoner phase change.
func NewStateEvent(state string) Event {
	return Event{Type: EventState, Data: map[string]any{"state": state}}
}

// NewPlanEvent carries the plan produced for the turn.
func NewPlanEvent(plan *Plan) Event {
	return Event{Type: EventPlan, Data: map[string]any{
		"intent":          plan.Intent,
		"needs_tools":     plan.NeedsTools,
		"plan":            plan.Steps,
		"estimated_tools": plan.EstimatedTools,
	}}
}

// NewIterationEvent announces iteration current of max.
func NewIterationEvent(current, max int) Event {
	return Event{Type: EventIteration, Data: map[string]any{"current": current, "max": max}}
}

// NewThoughtEvent carries reasoning text.
func NewThoughtEvent(content string) Event {
	return Event{Type: EventThought, Data: map[string]any{"content": content}}
}

// NewActionEvent announces dispatch of the named tool.
func NewActionEvent(tool string) Event {
	return Event{Type: EventAction, Data: map[string]any{"tool": tool}}
}

// NewObservationEvent carries the outbound copy of a tool outcome.
func NewObservationEvent(content string, success bool) Event {
	return Event{Type: EventObservation, Data: map[string]any{"content": content, "success": success}}
}

// NewAnswerEvent carries the final answer for the turn.
func NewAnswerEvent(content string) Event {
	return Event{Type: EventAnswer, Data: map[string]any{"content": content}}
}

// NewCancelledEvent confirms cancellation.
func NewCancelledEvent(message string) Event {
	return Event{Type: EventCancelled, Data: map[string]any{"message": message}}
}

// NewDocumentSetEvent confirms a document binding.
func NewDocumentSetEvent(documentID string) Event {
	return Event{Type: EventDocumentSet, Data: map[string]any{
		"message":     "document set",
		"document_id": documentID,
	}}
}

// NewPongEvent answers a ping with the current UTC timestamp.
func NewPongEvent() Event {
	return Event{Type: EventPong, Data: map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}}
}

// NewInfoEvent carries an informational notice.
func NewInfoEvent(message string) Event {
	return Event{Type: EventInfo, Data: map[string]any{"message": message}}
}

// NewErrorEvent carries a client-visible error with its code.
func NewErrorEvent(code, message string) Event {
	return Event{Type: EventError, Data: map[string]any{"code": code, "message": message}}
}
