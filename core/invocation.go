package core

import "time"

// InvocationStatus enumerates the lifecycle of one tool invocation.
type InvocationStatus string

const (
	// InvocationPending means the invocation row exists but execution has not started.
	InvocationPending InvocationStatus = "pending"
	// InvocationRunning means the tool body is executing.
	InvocationRunning InvocationStatus = "running"
	// InvocationSuccess is the terminal state for a successful envelope.
	InvocationSuccess InvocationStatus = "success"
	// InvocationFailed is the terminal state for validation or execution errors.
	InvocationFailed InvocationStatus = "failed"
	// InvocationTimeout is the terminal state when the per-tool deadline expired.
	InvocationTimeout InvocationStatus = "timeout"
	// InvocationCancelled is the terminal state when the enclosing turn was cancelled first.
	InvocationCancelled InvocationStatus = "cancelled"
)

// Terminal reports whether the invocation reached a final status.
func (s InvocationStatus) Terminal() bool {
	switch s {
	case InvocationSuccess, InvocationFailed, InvocationTimeout, InvocationCancelled:
		return true
	}
	return false
}

// ToolInvocation is the audit record of a single supervised tool call.
// FinishedAt is always >= StartedAt and the status is terminal before the
// enclosing Turn terminates.
type ToolInvocation struct {
	ID         string           `json:"id"`
	TurnID     string           `json:"turn_id"`
	ToolName   string           `json:"tool_name"`
	Args       map[string]any   `json:"args,omitempty"`
	Status     InvocationStatus `json:"status"`
	Output     any              `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewToolInvocation creates a pending invocation record for a turn.
func NewToolInvocation(turnID, toolName string, args map[string]any) *ToolInvocation {
	return &ToolInvocation{
		ID:        NewID(),
		TurnID:    turnID,
		ToolName:  toolName,
		Args:      args,
		Status:    InvocationPending,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps a terminal status and the finish time.
func (ti *ToolInvocation) Finish(status InvocationStatus, output any, errMsg string) {
	ti.Status = status
	ti.Output = output
	ti.Error = errMsg
	ti.FinishedAt = time.Now().UTC()
	if ti.FinishedAt.Before(ti.StartedAt) {
		ti.FinishedAt = ti.StartedAt
	}
}
