package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pagesense-ai/pagesense/llm"
	"github.com/pagesense-ai/pagesense/logging"
	"github.com/pagesense-ai/pagesense/store"
)

// DefaultImportance is assigned to memory items saved without an explicit
// importance score.
const DefaultImportance = 0.5

// Context is the bundle handed to the reasoner before planning.
type Context struct {
	UserProfile      string             `json:"user_profile"`
	SessionSummary   string             `json:"session_summary"`
	RelevantMemories []*store.MemoryItem `json:"relevant_memories"`
	WorkingMemory    map[string]any     `json:"working_memory"`
}

// SessionDigest is the structured output of session compression.
type SessionDigest struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// ManagerOptions tune retrieval windows and limits.
type ManagerOptions struct {
	// ProfileRecentMessages is the transcript window for profile synthesis.
	ProfileRecentMessages int
	// SummaryRecentMessages is the transcript window for summary derivation.
	SummaryRecentMessages int
	// RelevantLimit caps relevant long-term items per query.
	RelevantLimit int
	// ProfileItemThreshold is the minimum number of stored preference items
	// before synthesis is skipped.
	ProfileItemThreshold int
	// CompressionWindow caps the history entries fed into compression.
	CompressionWindow int
	// Logger receives degradation logs.
	Logger logging.Logger
}

// Manager owns working memory, the session cache and long-term retrieval
// for one session. It is safe for concurrent use, though a session mutates
// it from a single reasoning task at a time.
type Manager struct {
	store  store.Store
	client llm.Client
	logger logging.Logger

	userID         string
	conversationID string

	profileRecent     int
	summaryRecent     int
	relevantLimit     int
	profileThreshold  int
	compressionWindow int

	mu             sync.RWMutex
	working        map[string]any
	cachedProfile  string
	cachedSummary  string
	profileCached  bool
	summaryCached  bool
}

// NewManager creates a Manager bound to one user and conversation.
func NewManager(s store.Store, client llm.Client, userID, conversationID string, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		ProfileRecentMessages: 20,
		SummaryRecentMessages: 10,
		RelevantLimit:         5,
		ProfileItemThreshold:  3,
		CompressionWindow:     20,
		Logger:                logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		store:             s,
		client:            client,
		logger:            logging.OrNoOp(opts.Logger),
		userID:            userID,
		conversationID:    conversationID,
		profileRecent:     opts.ProfileRecentMessages,
		summaryRecent:     opts.SummaryRecentMessages,
		relevantLimit:     opts.RelevantLimit,
		profileThreshold:  opts.ProfileItemThreshold,
		compressionWindow: opts.CompressionWindow,
		working:           map[string]any{},
	}
}

// GetContext assembles the context bundle for a query. Every field degrades
// to its zero value on retrieval failure; GetContext itself never fails.
func (m *Manager) GetContext(ctx context.Context, query string) *Context {
	return &Context{
		UserProfile:      m.userProfile(ctx),
		SessionSummary:   m.sessionSummary(ctx),
		RelevantMemories: m.relevantMemories(ctx, query),
		WorkingMemory:    m.GetWorkingMemorySnapshot(),
	}
}

// userProfile prefers stored preference items; with too few on record it
// synthesizes a profile from the recent transcript and caches the result
// for the rest of the session.
func (m *Manager) userProfile(ctx context.Context) string {
	m.mu.RLock()
	if m.profileCached {
		defer m.mu.RUnlock()
		return m.cachedProfile
	}
	m.mu.RUnlock()

	items, err := m.store.QueryMemories(ctx, m.userID, store.MemoryFilter{
		Type:      store.MemoryPreference,
		Unexpired: true,
		Order:     store.OrderByImportance,
		Limit:     m.relevantLimit,
	})
	if err != nil {
		m.logger.Warn("memory.profile.query_failed", "error", err)
		return ""
	}

	var profile string
	if len(items) >= m.profileThreshold {
		profile = renderPreferences(items)
	} else {
		profile = m.synthesizeProfile(ctx)
	}

	m.mu.Lock()
	m.cachedProfile = profile
	m.profileCached = true
	m.mu.Unlock()
	return profile
}

func (m *Manager) synthesizeProfile(ctx context.Context) string {
	messages, err := m.store.RecentMessages(ctx, m.conversationID, m.profileRecent)
	if err != nil {
		m.logger.Warn("memory.profile.history_failed", "error", err)
		return ""
	}
	if len(messages) == 0 {
		return ""
	}

	out, err := m.client.GenerateJSON(ctx, llm.Request{
		Prompt:       profilePrompt(messages),
		SystemPrompt: profileSystemPrompt,
	})
	if err != nil {
		m.logger.Warn("memory.profile.llm_failed", "error", err)
		return ""
	}
	return string(out.Raw)
}

// sessionSummary uses the conversation's stored summary, deriving one from
// the recent transcript when empty, and caches it for the session.
func (m *Manager) sessionSummary(ctx context.Context) string {
	m.mu.RLock()
	if m.summaryCached {
		defer m.mu.RUnlock()
		return m.cachedSummary
	}
	m.mu.RUnlock()

	var summary string
	conv, err := m.store.GetConversation(ctx, m.conversationID)
	if err != nil {
		m.logger.Warn("memory.summary.conversation_failed", "error", err)
	} else if conv.Summary != "" {
		summary = conv.Summary
	} else {
		summary = m.deriveSummary(ctx)
	}

	m.mu.Lock()
	m.cachedSummary = summary
	m.summaryCached = true
	m.mu.Unlock()
	return summary
}

func (m *Manager) deriveSummary(ctx context.Context) string {
	messages, err := m.store.RecentMessages(ctx, m.conversationID, m.summaryRecent)
	if err != nil {
		m.logger.Warn("memory.summary.history_failed", "error", err)
		return ""
	}
	if len(messages) == 0 {
		return ""
	}

	out, err := m.client.Generate(ctx, llm.Request{
		Prompt:       summaryPrompt(messages),
		SystemPrompt: summarySystemPrompt,
	})
	if err != nil {
		m.logger.Warn("memory.summary.llm_failed", "error", err)
		return ""
	}
	return out.Content
}

// relevantMemories returns the best substring matches for the query and
// touches each one's access stats.
func (m *Manager) relevantMemories(ctx context.Context, query string) []*store.MemoryItem {
	if query == "" {
		return nil
	}
	items, err := m.store.QueryMemories(ctx, m.userID, store.MemoryFilter{
		Contains:  query,
		Unexpired: true,
		Order:     store.OrderByRelevance,
		Limit:     m.relevantLimit,
	})
	if err != nil {
		m.logger.Warn("memory.relevant.query_failed", "error", err)
		return nil
	}
	for _, item := range items {
		if err := m.store.TouchMemory(ctx, item.ID); err != nil {
			m.logger.Warn("memory.relevant.touch_failed", "memory_id", item.ID, "error", err)
		}
	}
	return items
}

// CompressAndSaveSession distills the turn's execution history into a
// conversation summary and long-term key points. Called once per completed
// turn, after the answer has been emitted.
func (m *Manager) CompressAndSaveSession(ctx context.Context, history []string) error {
	if len(history) == 0 {
		return nil
	}
	if len(history) > m.compressionWindow {
		history = history[len(history)-m.compressionWindow:]
	}

	out, err := m.client.GenerateJSON(ctx, llm.Request{
		Prompt:       compressionPrompt(history),
		SystemPrompt: compressionSystemPrompt,
	})
	if err != nil {
		return err
	}

	var digest SessionDigest
	if err := json.Unmarshal(out.Raw, &digest); err != nil {
		return err
	}

	if digest.Summary != "" {
		if err := m.store.UpdateConversationSummary(ctx, m.conversationID, digest.Summary); err != nil {
			return err
		}
	}
	for _, point := range digest.KeyPoints {
		if point == "" {
			continue
		}
		if err := m.SaveMemory(ctx, store.MemoryConversation, point, DefaultImportance, "", ""); err != nil {
			m.logger.Warn("memory.compress.save_failed", "error", err)
		}
	}
	return nil
}

// SaveMemory persists one long-term memory item.
func (m *Manager) SaveMemory(ctx context.Context, memType store.MemoryType, content string, importance float64, relatedConcept, documentID string) error {
	now := time.Now().UTC()
	return m.store.InsertMemory(ctx, &store.MemoryItem{
		UserID:         m.userID,
		Type:           memType,
		Content:        content,
		Importance:     importance,
		RelatedConcept: relatedConcept,
		DocumentID:     documentID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// UpdateWorkingMemory sets a key in the ephemeral working map.
func (m *Manager) UpdateWorkingMemory(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.working[key] = value
}

// GetWorkingMemory returns one working memory value.
func (m *Manager) GetWorkingMemory(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.working[key]
	return v, ok
}

// GetWorkingMemorySnapshot returns a shallow copy of working memory.
func (m *Manager) GetWorkingMemorySnapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.working))
	for k, v := range m.working {
		out[k] = v
	}
	return out
}

// ClearSessionCache drops the memoized profile and summary so the next
// GetContext re-derives them.
func (m *Manager) ClearSessionCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cachedProfile = ""
	m.cachedSummary = ""
	m.profileCached = false
	m.summaryCached = false
}

func renderPreferences(items []*store.MemoryItem) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(item.Content)
	}
	return b.String()
}
