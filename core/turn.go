package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TurnStatus enumerates the lifecycle states of a Turn. Transitions are
// strictly forward; the terminal states are completed, failed and cancelled.
type TurnStatus string

const (
	// TurnPlanning is the initial state while the planner runs.
	TurnPlanning TurnStatus = "planning"
	// TurnExecuting covers the ReAct loop and direct-answer generation.
	TurnExecuting TurnStatus = "executing"
	// TurnWaiting marks a turn parked on an external dependency.
	TurnWaiting TurnStatus = "waiting"
	// TurnCompleted is the successful terminal state.
	TurnCompleted TurnStatus = "completed"
	// TurnFailed is the unsuccessful terminal state.
	TurnFailed TurnStatus = "failed"
	// TurnCancelled is the terminal state after cooperative cancellation.
	TurnCancelled TurnStatus = "cancelled"
)

// Terminal reports whether the status is one a turn never leaves.
func (s TurnStatus) Terminal() bool {
	return s == TurnCompleted || s == TurnFailed || s == TurnCancelled
}

// turnRank orders statuses so transitions can be checked as strictly forward.
// The three terminal states share a rank: a turn reaches exactly one of them.
var turnRank = map[TurnStatus]int{
	TurnPlanning:  0,
	TurnExecuting: 1,
	TurnWaiting:   1,
	TurnCompleted: 2,
	TurnFailed:    2,
	TurnCancelled: 2,
}

// Plan is the planner's structured output for a turn.
type Plan struct {
	Intent         string   `json:"intent"`
	NeedsTools     bool     `json:"needs_tools"`
	Steps          []string `json:"plan"`
	EstimatedTools []string `json:"estimated_tools"`
}

// DefaultPlan is substituted when the planning call fails or returns
// unparsable JSON: answer directly without tools.
func DefaultPlan() *Plan {
	return &Plan{
		Intent:         "unknown",
		NeedsTools:     false,
		Steps:          []string{"answer directly"},
		EstimatedTools: []string{},
	}
}

// ReActStep is one (thought, action, observation) triple appended per loop
// iteration. Steps are append-only; a stored step is never mutated.
type ReActStep struct {
	Thought     string         `json:"thought"`
	Action      string         `json:"action,omitempty"`
	ActionInput map[string]any `json:"action_input,omitempty"`
	Observation string         `json:"observation"`
}

// Turn tracks one user query from acceptance through to answer, error or
// cancellation. A session holds at most one non-terminal Turn at a time.
type Turn struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	ConversationID   string      `json:"conversation_id"`
	Query            string      `json:"query"`
	Status           TurnStatus  `json:"status"`
	Plan             *Plan       `json:"plan,omitempty"`
	Iterations       int         `json:"iterations"`
	ExecutionHistory []ReActStep `json:"execution_history,omitempty"`
	Result           string      `json:"result,omitempty"`
	Error            string      `json:"error,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	ElapsedMS        int64       `json:"elapsed_ms"`
}

// NewTurn creates a Turn in the planning state.
func NewTurn(userID, conversationID, query string) *Turn {
	return &Turn{
		ID:             NewID(),
		UserID:         userID,
		ConversationID: conversationID,
		Query:          query,
		Status:         TurnPlanning,
		StartedAt:      time.Now().UTC(),
	}
}

// Transition moves the turn to the given status, enforcing the forward-only
// lifecycle. Re-entering the current status is a no-op; leaving a terminal
// state or moving backwards is an error.
func (t *Turn) Transition(to TurnStatus) error {
	if to == t.Status {
		return nil
	}
	if t.Status.Terminal() {
		return fmt.Errorf("turn %s is terminal (%s), cannot transition to %s", t.ID, t.Status, to)
	}
	if turnRank[to] < turnRank[t.Status] {
		return fmt.Errorf("turn %s cannot move backwards from %s to %s", t.ID, t.Status, to)
	}
	t.Status = to
	if to.Terminal() {
		t.ElapsedMS = time.Since(t.StartedAt).Milliseconds()
	}
	return nil
}

// AppendStep records a completed ReAct step and advances the iteration count.
func (t *Turn) AppendStep(step ReActStep) {
	t.ExecutionHistory = append(t.ExecutionHistory, step)
	t.Iterations = len(t.ExecutionHistory)
}

// NewID generates a unique identifier for turns, invocations and events.
func NewID() string { return uuid.NewString() }
