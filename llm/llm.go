// Package llm defines the minimal language-model client interface the
// engine consumes, with adapters for OpenAI and Anthropic plus a scripted
// mock for tests. The engine uses two shapes of generation: free-form text
// and JSON-structured output.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TokenUsage captures token counts for one generation call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Request is the normalized input for a generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int // 0 means the adapter default
}

// Completion is the result of a free-form generation call.
type Completion struct {
	Content string
	Usage   *TokenUsage
}

// JSONCompletion is the result of a structured generation call. Raw holds
// the extracted JSON object.
type JSONCompletion struct {
	Raw   json.RawMessage
	Usage *TokenUsage
}

// Client is the model surface the engine depends on. Implementations must
// honor context cancellation.
type Client interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
	GenerateJSON(ctx context.Context, req Request) (*JSONCompletion, error)
}

// jsonSystemSuffix is appended to the system prompt on GenerateJSON calls
// for providers without a native JSON output mode.
const jsonSystemSuffix = "Respond with a single JSON object only. No prose, no code fences."

// JSONInstruction appends the structured-output instruction to a system prompt.
func JSONInstruction(system string) string {
	if system == "" {
		return jsonSystemSuffix
	}
	return system + "\n\n" + jsonSystemSuffix
}

// ExtractJSON pulls the first JSON object out of a model response,
// tolerating surrounding prose and markdown code fences.
func ExtractJSON(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	raw := json.RawMessage(s[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON in response")
	}
	return raw, nil
}
