package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fiscaldata/invoice-agent/internal/api/middleware"
	"github.com/fiscaldata/invoice-agent/internal/archive"
	"github.com/fiscaldata/invoice-agent/internal/audit"
	"github.com/fiscaldata/invoice-agent/internal/merge"
	"github.com/fiscaldata/invoice-agent/internal/session"
)

// maxUploadBytes bounds a single CSV pair upload.
const maxUploadBytes = 64 << 20

// previewRows is how many merged rows are echoed back on session creation.
const previewRows = 5

// SessionsHandler handles session-related endpoints.
type SessionsHandler struct {
	manager   *session.Manager
	archiver  archive.Archiver
	publisher audit.Publisher
	log       zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler. archiver may be nil when
// no retention bucket is configured.
func NewSessionsHandler(manager *session.Manager, archiver archive.Archiver, publisher audit.Publisher, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		manager:   manager,
		archiver:  archiver,
		publisher: publisher,
		log:       log,
	}
}

// sessionResponse is the metadata returned for a session.
type sessionResponse struct {
	SessionID string     `json:"session_id"`
	JoinKey   string     `json:"join_key"`
	Rows      int        `json:"rows"`
	Columns   []string   `json:"columns"`
	CreatedAt time.Time  `json:"created_at"`
	Preview   [][]string `json:"preview,omitempty"`
}

// CreateSession handles POST /api/sessions. It expects a multipart form with
// two CSV files: "header" (invoice headers) and "items" (invoice line items).
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Expected multipart form with 'header' and 'items' CSV files")
		return
	}

	headerCSV, err := readFormFile(r, "header")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Missing or unreadable 'header' file: "+err.Error())
		return
	}
	itemsCSV, err := readFormFile(r, "items")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Missing or unreadable 'items' file: "+err.Error())
		return
	}

	s, err := h.manager.CreateFromBytes(ctx, headerCSV, itemsCSV)
	if err != nil {
		h.writeMergeError(w, err)
		return
	}

	h.log.Info().
		Str("session_id", s.ID).
		Str("join_key", s.JoinKey).
		Int("rows", s.Table.NumRows()).
		Msg("Session created")

	// Retention is best-effort: an archive failure never fails the merge.
	if h.archiver != nil {
		if uri, err := h.archiver.ArchivePair(ctx, s.ID, headerCSV, itemsCSV); err != nil {
			h.log.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to archive uploaded files")
		} else {
			h.log.Info().Str("session_id", s.ID).Str("gcs_uri", uri).Msg("Uploaded files archived")
		}
	}

	middleware.WriteJSON(w, http.StatusCreated, h.toResponse(s, true))
}

// GetSession handles GET /api/sessions/{id}.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	s, ok := h.manager.Get(sessionID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.toResponse(s, false))
}

// DeleteSession handles DELETE /api/sessions/{id}. The merged table is
// discarded with the session; a new file pair means a new session.
func (h *SessionsHandler) DeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !h.manager.Delete(sessionID) {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     "deleted",
	})
}

// Ask handles POST /api/sessions/{id}/ask.
func (h *SessionsHandler) Ask(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	s, ok := h.manager.Get(sessionID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Question == "" {
		middleware.WriteError(w, http.StatusBadRequest, "question is required")
		return
	}

	askedAt := time.Now()
	answer, askErr := s.Ask(ctx, req.Question)
	duration := time.Since(askedAt)

	h.publishAudit(r, s.ID, req.Question, answer, askErr, askedAt, duration)

	if askErr != nil {
		h.log.Error().Err(askErr).Str("session_id", s.ID).Msg("Agent failed to answer")
		middleware.WriteError(w, http.StatusBadGateway, "The agent failed to answer: "+askErr.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  s.ID,
		"question":    req.Question,
		"answer":      answer,
		"duration_ms": duration.Milliseconds(),
	})
}

// History handles GET /api/sessions/{id}/history.
func (h *SessionsHandler) History(w http.ResponseWriter, r *http.Request, sessionID string) {
	s, ok := h.manager.Get(sessionID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	messages := s.History()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.ID,
		"messages":   messages,
		"count":      len(messages),
	})
}

func (h *SessionsHandler) publishAudit(r *http.Request, sessionID, question, answer string, askErr error, askedAt time.Time, duration time.Duration) {
	if h.publisher == nil {
		return
	}

	entry := &audit.QuestionLog{
		SessionID:  sessionID,
		Question:   question,
		Answer:     answer,
		AskedAt:    askedAt,
		DurationMS: duration.Milliseconds(),
	}
	if askErr != nil {
		entry.AgentError = askErr.Error()
	}

	if err := h.publisher.Publish(r.Context(), entry); err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to publish audit entry")
	}
}

// writeMergeError maps the two merge failure kinds to actionable messages:
// malformed files vs. a missing shared key column require different fixes.
func (h *SessionsHandler) writeMergeError(w http.ResponseWriter, err error) {
	var loadErr *merge.LoadError
	var keyErr *merge.NoJoinKeyError

	switch {
	case errors.As(err, &keyErr):
		h.log.Warn().Err(err).Msg("No shared join key in uploaded files")
		middleware.WriteError(w, http.StatusBadRequest, keyErr.Error())
	case errors.As(err, &loadErr):
		h.log.Warn().Err(err).Msg("Uploaded files failed to parse")
		middleware.WriteError(w, http.StatusBadRequest, loadErr.Error())
	default:
		h.log.Error().Err(err).Msg("Failed to create session")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create session")
	}
}

func (h *SessionsHandler) toResponse(s *session.Session, withPreview bool) sessionResponse {
	resp := sessionResponse{
		SessionID: s.ID,
		JoinKey:   s.JoinKey,
		Rows:      s.Table.NumRows(),
		Columns:   s.Table.Headers,
		CreatedAt: s.CreatedAt,
	}
	if withPreview {
		head := s.Table.Head(previewRows)
		resp.Preview = make([][]string, 0, head.NumRows())
		for _, row := range head.Rows {
			rendered := make([]string, len(row))
			for i, cell := range row {
				rendered[i] = cell.String()
			}
			resp.Preview = append(resp.Preview, rendered)
		}
	}
	return resp
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// AuditHandler exposes the recent question log.
type AuditHandler struct {
	store audit.Store
	log   zerolog.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store audit.Store, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{store: store, log: log}
}

// ListEntries handles GET /api/audit.
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := audit.Filter{
		SessionID: query.Get("session_id"),
		Status:    audit.EntryStatus(query.Get("status")),
		Limit:     100,
	}

	entries, err := h.store.List(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list audit entries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list audit entries")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
