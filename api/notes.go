package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sylvahq/sylva/internal/embedding"
	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
)

// Note validation constants.
const (
	MaxTitleLength   = 500
	MaxContentLength = 100_000
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// NoteStore is the persistence surface the notes handlers need.
// *note.Store satisfies it.
type NoteStore interface {
	Create(ctx context.Context, n *note.Note) error
	Get(ctx context.Context, id uuid.UUID) (*note.Note, error)
	UpdateContent(ctx context.Context, id uuid.UUID, title, content string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]note.Note, error)
}

// EmbeddingManager keeps note embeddings current. *embedding.Manager
// satisfies it.
type EmbeddingManager interface {
	EmbedNote(ctx context.Context, n *note.Note) error
	Refresh(ctx context.Context, id uuid.UUID) error
	BackfillMissing(ctx context.Context, scope note.Scope) (embedding.BackfillResult, error)
}

// NotesHandler serves note CRUD and the embedding backfill endpoint.
type NotesHandler struct {
	store      NoteStore
	embeddings EmbeddingManager
	logger     log.Logger
}

// NewNotesHandler creates a notes handler.
func NewNotesHandler(store NoteStore, embeddings EmbeddingManager, logger log.Logger) *NotesHandler {
	return &NotesHandler{store: store, embeddings: embeddings, logger: logger}
}

// RegisterRoutes registers note routes on the given mux.
func (h *NotesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/notes", h.create)
	mux.HandleFunc("GET /api/notes", h.list)
	mux.HandleFunc("GET /api/notes/{id}", h.get)
	mux.HandleFunc("PUT /api/notes/{id}", h.update)
	mux.HandleFunc("DELETE /api/notes/{id}", h.delete)
	mux.HandleFunc("POST /api/embeddings/backfill", h.backfill)
}

// NoteRequest is the request body for creating or updating a note.
type NoteRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	DashboardID string `json:"dashboardId,omitempty"`
}

// NoteResponse is the JSON shape of a note.
type NoteResponse struct {
	ID          string    `json:"id"`
	DashboardID string    `json:"dashboardId,omitempty"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Embedded    bool      `json:"embedded"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toNoteResponse(n *note.Note) NoteResponse {
	resp := NoteResponse{
		ID:        n.ID.String(),
		Title:     n.Title,
		Content:   n.Content,
		Embedded:  n.EmbeddingModel != "",
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	if n.DashboardID != nil {
		resp.DashboardID = n.DashboardID.String()
	}
	return resp
}

func (h *NotesHandler) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerID(r)
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing or invalid X-User-ID header")
		return
	}

	req, ok := h.decodeNoteRequest(w, r)
	if !ok {
		return
	}

	n := &note.Note{OwnerID: owner, Title: req.Title, Content: req.Content}
	if req.DashboardID != "" {
		dashID, err := uuid.Parse(req.DashboardID)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "dashboardId is not a valid UUID")
			return
		}
		n.DashboardID = &dashID
	}

	if err := h.store.Create(r.Context(), n); err != nil {
		h.logger.Error("creating note", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to create note")
		return
	}

	// Embedding is best effort: a model outage must not block note saves.
	// Backfill picks up anything missed here.
	if err := h.embeddings.EmbedNote(r.Context(), n); err != nil && !embedding.IsSkippable(err) {
		h.logger.Warn("embedding new note, left for backfill", "id", n.ID, "error", err)
	}

	writeJSON(w, h.logger, http.StatusCreated, toNoteResponse(n))
}

func (h *NotesHandler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerID(r)
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing or invalid X-User-ID header")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	notes, err := h.store.ListByOwner(r.Context(), owner, limit)
	if err != nil {
		h.logger.Error("listing notes", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to list notes")
		return
	}

	out := make([]NoteResponse, 0, len(notes))
	for i := range notes {
		out = append(out, toNoteResponse(&notes[i]))
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"notes": out,
		"total": len(out),
		"limit": limit,
	})
}

func (h *NotesHandler) get(w http.ResponseWriter, r *http.Request) {
	n, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toNoteResponse(n))
}

func (h *NotesHandler) update(w http.ResponseWriter, r *http.Request) {
	n, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeNoteRequest(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdateContent(r.Context(), n.ID, req.Title, req.Content); err != nil {
		h.logger.Error("updating note", "id", n.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to update note")
		return
	}

	// Re-embed the new content, best effort.
	if err := h.embeddings.Refresh(r.Context(), n.ID); err != nil && !embedding.IsSkippable(err) {
		h.logger.Warn("refreshing note embedding, left for backfill", "id", n.ID, "error", err)
	}

	updated, err := h.store.Get(r.Context(), n.ID)
	if err != nil {
		h.logger.Error("reloading updated note", "id", n.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to load note")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toNoteResponse(updated))
}

func (h *NotesHandler) delete(w http.ResponseWriter, r *http.Request) {
	n, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), n.ID); err != nil {
		h.logger.Error("deleting note", "id", n.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to delete note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BackfillResponse summarizes one backfill run.
type BackfillResponse struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  []BackfillFailure `json:"failures,omitempty"`
}

// BackfillFailure reports one note that could not be embedded.
type BackfillFailure struct {
	NoteID string `json:"noteId"`
	Error  string `json:"error"`
}

// backfill embeds the caller's notes that are missing a current embedding.
// A whole-table run stays behind the CLI; this endpoint is always scoped.
func (h *NotesHandler) backfill(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerID(r)
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing or invalid X-User-ID header")
		return
	}

	result, err := h.embeddings.BackfillMissing(r.Context(), note.Scope{OwnerID: owner})
	if err != nil {
		h.logger.Error("running embedding backfill", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "backfill failed")
		return
	}

	resp := BackfillResponse{
		Processed: result.Processed,
		Succeeded: result.Succeeded,
		Failed:    len(result.Failures),
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, BackfillFailure{
			NoteID: f.NoteID.String(),
			Error:  f.Err.Error(),
		})
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// fetchOwned loads the note from the path ID and verifies the caller owns
// it. Notes owned by someone else read as not found so the endpoint does
// not leak which IDs exist.
func (h *NotesHandler) fetchOwned(w http.ResponseWriter, r *http.Request) (*note.Note, bool) {
	owner, ok := callerID(r)
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing or invalid X-User-ID header")
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "note id is not a valid UUID")
		return nil, false
	}

	n, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, note.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "note not found")
			return nil, false
		}
		h.logger.Error("loading note", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to load note")
		return nil, false
	}
	if n.OwnerID != owner {
		writeError(w, h.logger, http.StatusNotFound, "not_found", "note not found")
		return nil, false
	}
	return n, true
}

func (h *NotesHandler) decodeNoteRequest(w http.ResponseWriter, r *http.Request) (NoteRequest, bool) {
	var req NoteRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return NoteRequest{}, false
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "title too long")
		return NoteRequest{}, false
	}
	if len(req.Content) > MaxContentLength {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "content too long")
		return NoteRequest{}, false
	}
	return req, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
