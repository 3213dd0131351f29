package conversation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicops/scheduling-agent/pkg/logging"
)

// Handler exposes the conversation over HTTP, one utterance per turn.
type Handler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger
}

// NewHandler creates the HTTP boundary for the orchestrator.
func NewHandler(orchestrator *Orchestrator, logger *logging.Logger) *Handler {
	if orchestrator == nil {
		panic("conversation: orchestrator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

type turnRequest struct {
	Message string `json:"message"`
}

type turnResponse struct {
	SessionID string   `json:"session_id"`
	Replies   []string `json:"replies"`
}

// StartSession opens a fresh session and returns the greeting.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	replies, err := h.orchestrator.HandleTurn(r.Context(), sessionID, "")
	if err != nil {
		h.logger.Error("start session failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, turnResponse{SessionID: sessionID, Replies: replies})
}

// HandleTurn accepts one patient message for an existing session.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	replies, err := h.orchestrator.HandleTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		h.logger.Error("turn failed", "error", err, "session_id", sessionID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{SessionID: sessionID, Replies: replies})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
