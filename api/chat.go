package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/sylvahq/sylva/internal/llm"
	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
	"github.com/sylvahq/sylva/internal/rag"
)

// maxChatBodyBytes bounds the chat request body.
const maxChatBodyBytes = 1 << 20

// Assistant answers user queries. *rag.Assistant satisfies it.
type Assistant interface {
	Answer(ctx context.Context, query string, history []llm.Message, scope note.Scope) (*rag.Answer, error)
}

// ChatHandler serves the chat endpoint.
type ChatHandler struct {
	assistant Assistant
	logger    log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(assistant Assistant, logger log.Logger) *ChatHandler {
	return &ChatHandler{assistant: assistant, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

// ChatMessage is one prior conversation turn in a chat request.
type ChatMessage struct {
	// Role is "user" or "assistant".
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	Query       string        `json:"query"`
	DashboardID string        `json:"dashboardId,omitempty"`
	History     []ChatMessage `json:"history,omitempty"`
}

// ChatSource is one cited note in a chat response.
type ChatSource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ChatResponse is the response body for POST /api/chat.
type ChatResponse struct {
	Response string       `json:"response"`
	Intent   string       `json:"intent"`
	Sources  []ChatSource `json:"sources"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerID(r)
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing or invalid X-User-ID header")
		return
	}

	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	scope := note.Scope{OwnerID: owner}
	if req.DashboardID != "" {
		dashID, err := uuid.Parse(req.DashboardID)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "dashboardId is not a valid UUID")
			return
		}
		scope.DashboardID = &dashID
	}

	answer, err := h.assistant.Answer(r.Context(), req.Query, toHistory(req.History), scope)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "query is required")
			return
		}
		h.logger.Error("answering chat query", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to answer query")
		return
	}

	sources := make([]ChatSource, 0, len(answer.Sources))
	for _, n := range answer.Sources {
		sources = append(sources, ChatSource{ID: n.ID.String(), Title: n.Title})
	}

	writeJSON(w, h.logger, http.StatusOK, ChatResponse{
		Response: answer.Response,
		Intent:   string(answer.Intent),
		Sources:  sources,
	})
}

// toHistory converts wire-format history to completion messages. Unknown
// roles are treated as user turns rather than rejected.
func toHistory(msgs []ChatMessage) []llm.Message {
	if len(msgs) == 0 {
		return nil
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == "assistant" || m.Role == string(llm.RoleAssistant) {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return history
}
