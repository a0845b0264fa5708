// Package store defines the narrow persistence interface the engine
// consumes, plus the record types it owns: conversations, messages, turns,
// tool invocation audit rows and long-term memory items.
//
// Two implementations ship with the engine: InMemory for tests and default
// wiring, and SQLite for durable single-node deployments. Each call is
// transactional on its own; the engine makes no multi-statement claims.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pagesense-ai/pagesense/core"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Conversation is the durable container for a chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // user | assistant
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// MemoryType categorizes long-term memory items.
type MemoryType string

const (
	// MemoryPreference captures stable user preferences.
	MemoryPreference MemoryType = "preference"
	// MemoryKnowledge captures facts and concepts the user studied.
	MemoryKnowledge MemoryType = "knowledge"
	// MemoryConversation captures compressed session key points.
	MemoryConversation MemoryType = "conversation"
	// MemoryFeedback captures explicit user feedback.
	MemoryFeedback MemoryType = "feedback"
	// MemoryHabit captures recurring behavior patterns.
	MemoryHabit MemoryType = "habit"
)

// MemoryItem is one long-term memory record. Importance is in [0,1].
type MemoryItem struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Type           MemoryType `json:"memory_type"`
	Content        string     `json:"content"`
	Importance     float64    `json:"importance"`
	RelatedConcept string     `json:"related_concept,omitempty"`
	DocumentID     string     `json:"document_id,omitempty"`
	AccessCount    int        `json:"access_count"`
	LastAccessed   time.Time  `json:"last_accessed"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Expired reports whether the item has an expiry in the past.
func (m *MemoryItem) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// MemoryOrder selects the ranking applied to memory queries.
type MemoryOrder int

const (
	// OrderByImportance ranks by (importance desc, updated_at desc).
	OrderByImportance MemoryOrder = iota
	// OrderByRelevance ranks by (importance desc, access_count desc, updated_at desc).
	OrderByRelevance
)

// MemoryFilter narrows a memory query. Contains is a case-insensitive
// substring predicate on content; empty means no content filter.
type MemoryFilter struct {
	Type      MemoryType
	Contains  string
	Unexpired bool
	Order     MemoryOrder
	Limit     int
}

// Store is the persistence surface consumed by the engine.
type Store interface {
	// Conversations and messages.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	UpdateConversationSummary(ctx context.Context, conversationID, summary string) error
	AppendMessage(ctx context.Context, msg *Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Turn lifecycle and tool audit rows.
	CreateTurn(ctx context.Context, turn *core.Turn) error
	UpdateTurn(ctx context.Context, turn *core.Turn) error
	CreateToolInvocation(ctx context.Context, inv *core.ToolInvocation) error
	UpdateToolInvocation(ctx context.Context, inv *core.ToolInvocation) error

	// Long-term memory.
	QueryMemories(ctx context.Context, userID string, filter MemoryFilter) ([]*MemoryItem, error)
	InsertMemory(ctx context.Context, item *MemoryItem) error
	TouchMemory(ctx context.Context, memoryID string) error

	// Access checks.
	CheckConversationAccess(ctx context.Context, userID, conversationID string) (bool, error)
	CheckDocumentAccess(ctx context.Context, userID, documentID string) (bool, error)
}
