package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // cgo-free sqlite driver

	"github.com/pagesense-ai/pagesense/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE TABLE IF NOT EXISTS turns (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	plan TEXT,
	iterations INTEGER NOT NULL DEFAULT 0,
	execution_history TEXT,
	result TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	elapsed_ms INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS tool_invocations (
	id TEXT PRIMARY KEY,
	turn_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	args TEXT,
	status TEXT NOT NULL,
	output TEXT,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	content TEXT NOT NULL,
	importance REAL NOT NULL DEFAULT 0.5,
	related_concept TEXT NOT NULL DEFAULT '',
	document_id TEXT NOT NULL DEFAULT '',
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed TIMESTAMP,
	expires_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL
);
`

// SQLite is a Store backed by a single SQLite database file. It uses the
// cgo-free modernc driver so the binary stays portable.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and bootstraps
// the schema. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The modernc driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent turn + usage writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// GetConversation returns the conversation or ErrNotFound.
func (s *SQLite) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, summary, created_at, updated_at FROM conversations WHERE id = ?`,
		conversationID)
	var c Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Summary, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a conversation row. Bootstrap hook for the
// surrounding application; the engine itself only reads and summarizes.
func (s *SQLite) CreateConversation(ctx context.Context, c *Conversation) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, summary, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.Summary, c.CreatedAt, c.UpdatedAt)
	return err
}

// UpdateConversationSummary replaces the stored summary.
func (s *SQLite) UpdateConversationSummary(ctx context.Context, conversationID, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ?, updated_at = ? WHERE id = ?`,
		summary, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AppendMessage stores a message.
func (s *SQLite) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	return err
}

// RecentMessages returns up to limit most recent messages in chronological order.
func (s *SQLite) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	out := make([]*Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

// CreateTurn inserts a turn row.
func (s *SQLite) CreateTurn(ctx context.Context, turn *core.Turn) error {
	plan, history, err := marshalTurnBlobs(turn)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, user_id, conversation_id, query, status, plan, iterations, execution_history, result, error, started_at, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.ConversationID, turn.Query, string(turn.Status),
		plan, turn.Iterations, history, turn.Result, turn.Error, turn.StartedAt, turn.ElapsedMS)
	return err
}

// UpdateTurn replaces the mutable columns of a turn row.
func (s *SQLite) UpdateTurn(ctx context.Context, turn *core.Turn) error {
	plan, history, err := marshalTurnBlobs(turn)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, plan = ?, iterations = ?, execution_history = ?, result = ?, error = ?, elapsed_ms = ?
		 WHERE id = ?`,
		string(turn.Status), plan, turn.Iterations, history, turn.Result, turn.Error, turn.ElapsedMS, turn.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// GetTurn loads a turn row including plan and execution history.
func (s *SQLite) GetTurn(ctx context.Context, turnID string) (*core.Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, conversation_id, query, status, plan, iterations, execution_history, result, error, started_at, elapsed_ms
		 FROM turns WHERE id = ?`, turnID)
	var (
		t             core.Turn
		status        string
		plan, history sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.ConversationID, &t.Query, &status,
		&plan, &t.Iterations, &history, &t.Result, &t.Error, &t.StartedAt, &t.ElapsedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = core.TurnStatus(status)
	if plan.Valid && plan.String != "" {
		var p core.Plan
		if err := json.Unmarshal([]byte(plan.String), &p); err == nil {
			t.Plan = &p
		}
	}
	if history.Valid && history.String != "" {
		_ = json.Unmarshal([]byte(history.String), &t.ExecutionHistory)
	}
	return &t, nil
}

// CreateToolInvocation inserts an invocation audit row.
func (s *SQLite) CreateToolInvocation(ctx context.Context, inv *core.ToolInvocation) error {
	args, output, err := marshalInvocationBlobs(inv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_invocations (id, turn_id, tool_name, args, status, output, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.TurnID, inv.ToolName, args, string(inv.Status), output, inv.Error,
		inv.StartedAt, nullTime(inv.FinishedAt))
	return err
}

// UpdateToolInvocation replaces the mutable columns of an invocation row.
func (s *SQLite) UpdateToolInvocation(ctx context.Context, inv *core.ToolInvocation) error {
	args, output, err := marshalInvocationBlobs(inv)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tool_invocations SET args = ?, status = ?, output = ?, error = ?, finished_at = ? WHERE id = ?`,
		args, string(inv.Status), output, inv.Error, nullTime(inv.FinishedAt), inv.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// QueryMemories filters and ranks memory items per the filter. The ranking
// tuple matches the in-memory implementation: importance desc, then (for
// relevance queries) access_count desc, then updated_at desc.
func (s *SQLite) QueryMemories(ctx context.Context, userID string, filter MemoryFilter) ([]*MemoryItem, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if filter.Type != "" {
		where = append(where, "memory_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Unexpired {
		where = append(where, "(expires_at IS NULL OR expires_at > ?)")
		args = append(args, time.Now().UTC())
	}
	if filter.Contains != "" {
		where = append(where, "lower(content) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Contains)+"%")
	}

	order := "importance DESC, updated_at DESC"
	if filter.Order == OrderByRelevance {
		order = "importance DESC, access_count DESC, updated_at DESC"
	}

	query := `SELECT id, user_id, memory_type, content, importance, related_concept, document_id,
			access_count, last_accessed, expires_at, created_at, updated_at
		 FROM memories WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ` + order
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MemoryItem
	for rows.Next() {
		var (
			m          MemoryItem
			mtype      string
			lastAccess sql.NullTime
			expires    sql.NullTime
		)
		err := rows.Scan(&m.ID, &m.UserID, &mtype, &m.Content, &m.Importance, &m.RelatedConcept,
			&m.DocumentID, &m.AccessCount, &lastAccess, &expires, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		m.Type = MemoryType(mtype)
		if lastAccess.Valid {
			m.LastAccessed = lastAccess.Time
		}
		if expires.Valid {
			t := expires.Time
			m.ExpiresAt = &t
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// InsertMemory stores a new long-term memory item.
func (s *SQLite) InsertMemory(ctx context.Context, item *MemoryItem) error {
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
	var expires any
	if item.ExpiresAt != nil {
		expires = *item.ExpiresAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, memory_type, content, importance, related_concept, document_id,
			access_count, last_accessed, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, string(item.Type), item.Content, item.Importance, item.RelatedConcept,
		item.DocumentID, item.AccessCount, nullTime(item.LastAccessed), expires, item.CreatedAt, item.UpdatedAt)
	return err
}

// TouchMemory increments access_count and stamps last_accessed.
func (s *SQLite) TouchMemory(ctx context.Context, memoryID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		time.Now().UTC(), memoryID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CheckConversationAccess reports whether the user owns the conversation.
func (s *SQLite) CheckConversationAccess(ctx context.Context, userID, conversationID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversations WHERE id = ? AND user_id = ?`, conversationID, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CheckDocumentAccess reports whether the user owns the document.
func (s *SQLite) CheckDocumentAccess(ctx context.Context, userID, documentID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM documents WHERE id = ? AND user_id = ?`, documentID, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func marshalTurnBlobs(turn *core.Turn) (plan, history any, err error) {
	if turn.Plan != nil {
		b, err := json.Marshal(turn.Plan)
		if err != nil {
			return nil, nil, err
		}
		plan = string(b)
	}
	if len(turn.ExecutionHistory) > 0 {
		b, err := json.Marshal(turn.ExecutionHistory)
		if err != nil {
			return nil, nil, err
		}
		history = string(b)
	}
	return plan, history, nil
}

func marshalInvocationBlobs(inv *core.ToolInvocation) (args, output any, err error) {
	if inv.Args != nil {
		b, err := json.Marshal(inv.Args)
		if err != nil {
			return nil, nil, err
		}
		args = string(b)
	}
	if inv.Output != nil {
		b, err := json.Marshal(inv.Output)
		if err != nil {
			return nil, nil, err
		}
		output = string(b)
	}
	return args, output, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
