// Package api exposes the session layer over a JSON HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/models"
	"nextrial-session/internal/session"
)

// ==========================
// SERVICE INTERFACES
// ==========================

// ConversationService is the slice of the store the API needs.
type ConversationService interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*models.Conversation, error)
	RenameConversation(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id string) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// QueryService is the slice of the orchestrator the API needs.
type QueryService interface {
	SubmitQuery(ctx context.Context, conversationID, text string) (*session.QueryOutcome, error)
	ClearConversation(ctx context.Context, conversationID string) error
	Degraded() bool
	CircuitState() string
}

// SourceService is the slice of the toggle registry the API needs.
type SourceService interface {
	All() []models.SourceToggle
	Toggle(ctx context.Context, id string) (bool, error)
}

// Logger is the subset of the shared logger used by this package.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// ==========================
// SERVER
// ==========================

// Server routes conversation, query and source-toggle requests to the
// session layer.
type Server struct {
	conversations ConversationService
	queries       QueryService
	sources       SourceService
	logger        Logger
	version       string
}

func NewServer(conversations ConversationService, queries QueryService, sources SourceService, log Logger, version string) *Server {
	return &Server{
		conversations: conversations,
		queries:       queries,
		sources:       sources,
		logger:        log.With(map[string]interface{}{"component": "api"}),
		version:       version,
	}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PATCH /api/conversations/{id}", s.handleRenameConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("DELETE /api/conversations/{id}/messages", s.handleClearMessages)
	mux.HandleFunc("POST /api/conversations/{id}/query", s.handleSubmitQuery)

	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("POST /api/sources/{id}/toggle", s.handleToggleSource)

	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// ==========================
// CONVERSATION HANDLERS
// ==========================

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"ownerId"`
		Title   string `json:"title"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	conv, err := s.conversations.CreateConversation(r.Context(), req.OwnerID, req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	convs, err := s.conversations.ListConversations(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.conversations.RenameConversation(r.Context(), r.PathValue("id"), req.Title); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.conversations.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==========================
// MESSAGE & QUERY HANDLERS
// ==========================

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.conversations.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.queries.ClearConversation(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	outcome, err := s.queries.SubmitQuery(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		// A failed search that persisted the user message still carries a
		// useful outcome; attach it to the error body.
		if outcome != nil {
			s.writeJSON(w, statusFor(err), outcome)
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

// ==========================
// SOURCE HANDLERS
// ==========================

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sources": s.sources.All()})
}

func (s *Server) handleToggleSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	enabled, err := s.sources.Toggle(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": enabled})
}

// ==========================
// HEALTH
// ==========================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"version":         s.version,
		"circuit":         s.queries.CircuitState(),
		"backendDegraded": s.queries.Degraded(),
		"time":            time.Now().UTC().Format(time.RFC3339),
	})
}

// ==========================
// HELPERS
// ==========================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("malformed JSON body"))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	stdErr := apperrors.AsStandard(err)
	if stdErr == nil {
		stdErr = apperrors.NewPersistenceError("internal", err)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", map[string]interface{}{
			"path":   r.URL.Path,
			"code":   string(stdErr.Code),
			"detail": stdErr.Details,
		})
	}

	s.writeJSON(w, status, map[string]interface{}{"error": stdErr})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeQueryInProgress:
		return http.StatusConflict
	case apperrors.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTransport, apperrors.ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
