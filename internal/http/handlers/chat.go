package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jomigata/wiz-coco-sub004/internal/chat"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

// ChatHandler exposes the conversation surface: sending messages and
// driving session escalation.
type ChatHandler struct {
	service *chat.Service
	logger  *logging.Logger
}

func NewChatHandler(service *chat.Service, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{service: service, logger: logger}
}

// SendMessageRequest is one client chat turn. An empty session_id starts
// a new session.
type SendMessageRequest struct {
	SessionID string `json:"session_id,omitempty"`
	ClientID  string `json:"client_id"`
	Text      string `json:"text"`
}

// SendMessage runs the safety pipeline and returns the reply.
// POST /chat/send-message
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" || req.Text == "" {
		jsonError(w, "missing client_id or text", http.StatusBadRequest)
		return
	}
	var sessionID uuid.UUID
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			jsonError(w, "invalid session id", http.StatusBadRequest)
			return
		}
		sessionID = parsed
	}

	result, err := h.service.SendMessage(r.Context(), sessionID, req.ClientID, req.Text)
	if err != nil {
		h.logger.Error("send message failed", "error", err, "client_id", req.ClientID)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SessionRequest targets one chat session.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// EscalateSession hands a session over to a counselor on explicit request.
// POST /chat/escalate-session
func (h *ChatHandler) EscalateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.parseSessionRequest(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Escalate(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// CloseSession ends a session.
// POST /chat/close-session
func (h *ChatHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.parseSessionRequest(w, r)
	if !ok {
		return
	}
	sess, err := h.service.CloseSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// StartSessionRequest opens a session without a first message.
type StartSessionRequest struct {
	ClientID string `json:"client_id"`
}

// StartSession creates a fresh active session.
// POST /chat/sessions
func (h *ChatHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		jsonError(w, "missing client_id", http.StatusBadRequest)
		return
	}
	sess, err := h.service.StartSession(r.Context(), req.ClientID)
	if err != nil {
		h.logger.Error("start session failed", "error", err, "client_id", req.ClientID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *ChatHandler) parseSessionRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return uuid.Nil, false
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		jsonError(w, "invalid session id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return sessionID, true
}
