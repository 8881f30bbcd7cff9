package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
)

// maxContentLength caps a single message body.
const maxContentLength = 4000

// ChatStateResponse represents the live chat state.
type ChatStateResponse struct {
	Messages       []models.Message `json:"messages"`
	ConversationID string           `json:"conversation_id,omitempty"`
	VisitorID      string           `json:"visitor_id"`
}

// GetChatState handles reading the live chat state.
func (h *Handler) GetChatState(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	h.JSON(w, http.StatusOK, ChatStateResponse{
		Messages:       m.Messages(),
		ConversationID: m.ConversationID(),
		VisitorID:      m.VisitorID().String(),
	})
}

// PostMessageRequest is the request body for appending a message.
type PostMessageRequest struct {
	Content string `json:"content"`
	Ask     bool   `json:"ask"` // run the study-guide round trip
}

// PostMessageResponse carries the appended message and, when asked, the
// assistant's reply.
type PostMessageResponse struct {
	Message models.Message  `json:"message"`
	Reply   *models.Message `json:"reply,omitempty"`
}

// PostMessage handles appending a user message, optionally forwarding it
// to the AI study guide.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxContentLength {
		h.Error(w, http.StatusBadRequest, "content too long")
		return
	}

	if req.Ask {
		userMsg, reply, err := m.Ask(r.Context(), req.Content)
		if err != nil {
			h.Error(w, http.StatusBadGateway, "assistant unavailable")
			return
		}
		h.JSON(w, http.StatusOK, PostMessageResponse{Message: userMsg, Reply: &reply})
		return
	}

	msg, err := m.AddMessage(r.Context(), models.Message{
		Role:    models.RoleUser,
		Content: req.Content,
	})
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	h.JSON(w, http.StatusCreated, PostMessageResponse{Message: msg})
}

// ClearMessages handles emptying the live message list.
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	if err := m.ClearMessages(r.Context()); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to clear messages")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// NewChatResponse reports the transcript archived by a new-chat request.
type NewChatResponse struct {
	Archived   bool               `json:"archived"`
	Transcript *models.Transcript `json:"transcript,omitempty"`
}

// StartNewChat archives the current messages, clears state, and refreshes
// the backend conversation list.
func (h *Handler) StartNewChat(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	transcript, err := m.StartNewChat(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to archive chat")
		return
	}

	h.JSON(w, http.StatusOK, NewChatResponse{
		Archived:   transcript != nil,
		Transcript: transcript,
	})
}

// SaveAndStartNewChat archives the current messages without touching the
// backend conversation list.
func (h *Handler) SaveAndStartNewChat(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	transcript, err := m.SaveAndStartNewChat(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to archive chat")
		return
	}

	h.JSON(w, http.StatusOK, NewChatResponse{
		Archived:   transcript != nil,
		Transcript: transcript,
	})
}
