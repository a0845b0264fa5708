package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pagesense-ai/pagesense/core"
)

// InMemory is a mutex-guarded map-backed Store. It is the default for tests
// and local development; production deployments use SQLite.
type InMemory struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message // keyed by conversation id
	turns         map[string]*core.Turn
	invocations   map[string]*core.ToolInvocation
	memories      []*MemoryItem
	documents     map[string]string // document id -> owning user id
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		conversations: map[string]*Conversation{},
		messages:      map[string][]*Message{},
		turns:         map[string]*core.Turn{},
		invocations:   map[string]*core.ToolInvocation{},
		documents:     map[string]string{},
	}
}

// SeedConversation registers a conversation owned by a user. Test helper
// and bootstrap hook for callers that create conversations elsewhere.
func (s *InMemory) SeedConversation(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.conversations[conversationID] = &Conversation{
		ID: conversationID, UserID: userID, CreatedAt: now, UpdatedAt: now,
	}
}

// SeedDocument registers a document owned by a user.
func (s *InMemory) SeedDocument(documentID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[documentID] = userID
}

// GetConversation returns the conversation or ErrNotFound.
func (s *InMemory) GetConversation(_ context.Context, conversationID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// UpdateConversationSummary replaces the stored summary.
func (s *InMemory) UpdateConversationSummary(_ context.Context, conversationID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.Summary = summary
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendMessage stores a message in arrival order.
func (s *InMemory) AppendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &cp)
	return nil
}

// RecentMessages returns up to limit most recent messages in chronological order.
func (s *InMemory) RecentMessages(_ context.Context, conversationID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// CreateTurn stores a new turn record.
func (s *InMemory) CreateTurn(_ context.Context, turn *core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *turn
	s.turns[turn.ID] = &cp
	return nil
}

// UpdateTurn replaces the stored turn record.
func (s *InMemory) UpdateTurn(_ context.Context, turn *core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns[turn.ID]; !ok {
		return ErrNotFound
	}
	cp := *turn
	s.turns[turn.ID] = &cp
	return nil
}

// GetTurn returns a stored turn. Test helper.
func (s *InMemory) GetTurn(turnID string) (*core.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.turns[turnID]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// CreateToolInvocation stores a new invocation audit row.
func (s *InMemory) CreateToolInvocation(_ context.Context, inv *core.ToolInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.invocations[inv.ID] = &cp
	return nil
}

// UpdateToolInvocation replaces the stored invocation row.
func (s *InMemory) UpdateToolInvocation(_ context.Context, inv *core.ToolInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invocations[inv.ID]; !ok {
		return ErrNotFound
	}
	cp := *inv
	s.invocations[inv.ID] = &cp
	return nil
}

// GetToolInvocation returns a stored invocation row. Test helper.
func (s *InMemory) GetToolInvocation(id string) (*core.ToolInvocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invocations[id]
	if !ok {
		return nil, false
	}
	cp := *inv
	return &cp, true
}

// InvocationsForTurn returns the stored invocation rows for a turn. Test helper.
func (s *InMemory) InvocationsForTurn(turnID string) []*core.ToolInvocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.ToolInvocation
	for _, inv := range s.invocations {
		if inv.TurnID == turnID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out
}

// QueryMemories filters and ranks memory items per the filter.
func (s *InMemory) QueryMemories(_ context.Context, userID string, filter MemoryFilter) ([]*MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	needle := strings.ToLower(filter.Contains)

	var matched []*MemoryItem
	for _, m := range s.memories {
		if m.UserID != userID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if filter.Unexpired && m.Expired(now) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		cp := *m
		matched = append(matched, &cp)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if filter.Order == OrderByRelevance && a.AccessCount != b.AccessCount {
			return a.AccessCount > b.AccessCount
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// InsertMemory stores a new long-term memory item.
func (s *InMemory) InsertMemory(_ context.Context, item *MemoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = core.NewID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	cp := *item
	s.memories = append(s.memories, &cp)
	return nil
}

// TouchMemory increments access_count and stamps last_accessed.
func (s *InMemory) TouchMemory(_ context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memories {
		if m.ID == memoryID {
			m.AccessCount++
			m.LastAccessed = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

// CheckConversationAccess reports whether the user owns the conversation.
func (s *InMemory) CheckConversationAccess(_ context.Context, userID, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	return ok && c.UserID == userID, nil
}

// CheckDocumentAccess reports whether the user owns the document.
func (s *InMemory) CheckDocumentAccess(_ context.Context, userID, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.documents[documentID]
	return ok && owner == userID, nil
}
