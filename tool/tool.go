// Package tool implements the supervised tool runtime: the tool contract,
// a registration-ordered registry with catalog export and search, and the
// supervisor that wraps every invocation with validation, timeout and
// structured error capture.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/pagesense-ai/pagesense/internal/util"
)

// DefaultTimeout is the per-tool deadline applied when a tool declares none.
const DefaultTimeout = 30 * time.Second

// ParameterSpec re-exports the JSON-schema-like argument spec tools declare.
type ParameterSpec = util.ParameterSpec

// Property re-exports a single declared parameter.
type Property = util.Property

// ValidationError re-exports a single validation failure.
type ValidationError = util.ValidationError

// Tool is the contract every capability implements. Implementations must be
// safe for concurrent use; Execute is pure with respect to engine state and
// may touch stores, models or external services.
type Tool interface {
	// Name returns the unique identifier (snake_case recommended).
	Name() string

	// Category groups tools for catalog rendering.
	Category() string

	// Description returns the human-readable description for lang ("zh"/"en").
	// Shown to the model in the catalog, so it should be concise and imperative.
	Description(lang string) string

	// Parameters declares the accepted arguments.
	Parameters() *ParameterSpec

	// Timeout returns the per-invocation deadline; zero means DefaultTimeout.
	Timeout() time.Duration

	// MaxRetries is advisory; the loop never auto-retries but tools may self-retry.
	MaxRetries() int

	// Async reports whether the body is cooperative (network/LLM-bound).
	// Blocking bodies (Async() == false) are offloaded to the worker pool.
	Async() bool

	// Execute runs the tool with already-validated arguments.
	Execute(ctx context.Context, args map[string]any) *Result

	// WantsUserID reports whether the ambient user id should be injected
	// into args as "user_id" when the caller did not provide one.
	WantsUserID() bool
}

// ToolError represents a structured failure inside the tool runtime.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
