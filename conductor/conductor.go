// Package conductor owns the websocket session surface: it authenticates
// clients, dispatches inbound frames, runs one turn at a time through the
// reasoner and streams the emitted events back out.
package conductor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagesense-ai/pagesense/agent"
	"github.com/pagesense-ai/pagesense/core"
	"github.com/pagesense-ai/pagesense/logging"
	"github.com/pagesense-ai/pagesense/metrics"
	"github.com/pagesense-ai/pagesense/store"
)

// Close codes used during attach.
const (
	CloseBadRequest   = 4000
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

// Client-visible error codes.
const (
	CodeUnknownMessageType   = "unknown_message_type"
	CodeInvalidJSON          = "invalid_json"
	CodeProcessingError      = "processing_error"
	CodeEmptyContent         = "empty_content"
	CodeAlreadyProcessing    = "already_processing"
	CodeExecutionError       = "execution_error"
	CodeQueryError           = "query_error"
	CodeMissingDocumentID    = "missing_document_id"
	CodeDocumentAccessDenied = "document_access_denied"
	CodeSetDocumentError     = "set_document_error"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// StaticAuthenticator maps tokens to user ids. Intended for tests and
// single-tenant deployments.
type StaticAuthenticator map[string]string

// Authenticate implements Authenticator.
func (a StaticAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	userID, ok := a[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userID, nil
}

// ReasonerFactory builds the per-session reasoner bound to one user and
// conversation.
type ReasonerFactory func(userID, conversationID string) *agent.Reasoner

// Options configure a Handler.
type Options struct {
	// Logger receives session lifecycle logs.
	Logger logging.Logger
	// Metrics receives session instrumentation.
	Metrics *metrics.Metrics
	// CheckOrigin overrides the upgrader origin policy. Default allows all.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades websocket connections at /ws/agent/{conversation_id}
// and runs one session per connection.
type Handler struct {
	store       store.Store
	auth        Authenticator
	newReasoner ReasonerFactory
	logger      logging.Logger
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
}

// NewHandler wires the session surface.
func NewHandler(s store.Store, auth Authenticator, factory ReasonerFactory, optFns ...func(o *Options)) *Handler {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		CheckOrigin: func(*http.Request) bool { return true },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	return &Handler{
		store:       s,
		auth:        auth,
		newReasoner: factory,
		logger:      logging.OrNoOp(opts.Logger),
		metrics:     opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// ServeHTTP performs the attach sequence: upgrade, authenticate, check
// conversation access, then hand the connection to a session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	userID, err := h.auth.Authenticate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.logger.Warn("conductor.attach.unauthorized", "error", err)
		closeWith(conn, CloseUnauthorized, "unauthorized")
		return
	}

	conversationID := conversationIDFromPath(r.URL.Path)
	if conversationID == "" {
		closeWith(conn, CloseBadRequest, "missing conversation id")
		return
	}

	ok, err := h.store.CheckConversationAccess(r.Context(), userID, conversationID)
	if err != nil || !ok {
		h.logger.Warn("conductor.attach.forbidden", "user_id", userID, "conversation_id", conversationID, "error", err)
		closeWith(conn, CloseForbidden, "no access to conversation")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		handler:        h,
		conn:           conn,
		send:           make(chan core.Event, 64),
		ctx:            ctx,
		cancel:         cancel,
		userID:         userID,
		conversationID: conversationID,
		reasoner:       h.newReasoner(userID, conversationID),
		logger:         h.logger,
	}

	h.metrics.SessionStarted()
	defer h.metrics.SessionEnded()
	h.logger.Info("conductor.attach", "user_id", userID, "conversation_id", conversationID)
	sess.run()
}

// conversationIDFromPath extracts the trailing path segment after
// /ws/agent/.
func conversationIDFromPath(path string) string {
	const prefix = "/ws/agent/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id := strings.TrimPrefix(path, prefix)
	return strings.Trim(id, "/")
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	_ = conn.Close()
}
