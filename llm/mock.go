package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Mock is a scripted in-memory Client for tests. Responses are consumed in
// FIFO order per call kind; when a queue runs dry the zero response repeats.
type Mock struct {
	mu sync.Mutex

	textQueue []scriptedText
	jsonQueue []scriptedJSON

	// Prompts records every request seen, in order, for assertions.
	Prompts []Request
}

type scriptedText struct {
	content string
	usage   *TokenUsage
	err     error
}

type scriptedJSON struct {
	raw   json.RawMessage
	usage *TokenUsage
	err   error
}

// NewMock creates an empty scripted client.
func NewMock() *Mock { return &Mock{} }

// QueueText schedules a free-form completion.
func (m *Mock) QueueText(content string, usage *TokenUsage) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textQueue = append(m.textQueue, scriptedText{content: content, usage: usage})
	return m
}

// QueueTextError schedules a Generate failure.
func (m *Mock) QueueTextError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textQueue = append(m.textQueue, scriptedText{err: err})
	return m
}

// QueueJSON schedules a structured completion. The value is marshalled once
// at queue time; strings are treated as raw JSON.
func (m *Mock) QueueJSON(v any, usage *TokenUsage) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	var raw json.RawMessage
	switch t := v.(type) {
	case string:
		raw = json.RawMessage(t)
	case json.RawMessage:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("llm.Mock: unmarshalable scripted response: %v", err))
		}
		raw = b
	}
	m.jsonQueue = append(m.jsonQueue, scriptedJSON{raw: raw, usage: usage})
	return m
}

// QueueJSONError schedules a GenerateJSON failure. Unparsable model output
// is scripted the same way: the engine only sees the error.
func (m *Mock) QueueJSONError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jsonQueue = append(m.jsonQueue, scriptedJSON{err: err})
	return m
}

// Generate implements Client.
func (m *Mock) Generate(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, req)
	if len(m.textQueue) == 0 {
		return &Completion{Content: ""}, nil
	}
	next := m.textQueue[0]
	m.textQueue = m.textQueue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &Completion{Content: next.content, Usage: next.usage}, nil
}

// GenerateJSON implements Client.
func (m *Mock) GenerateJSON(ctx context.Context, req Request) (*JSONCompletion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, req)
	if len(m.jsonQueue) == 0 {
		return nil, fmt.Errorf("llm.Mock: no scripted JSON response")
	}
	next := m.jsonQueue[0]
	m.jsonQueue = m.jsonQueue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &JSONCompletion{Raw: next.raw, Usage: next.usage}, nil
}
