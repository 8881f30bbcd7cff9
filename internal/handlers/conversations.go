package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
	"github.com/mehetab-01/apex-ai-sub001/internal/session"
)

// ConversationListResponse represents the backend conversation listing.
type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
	Total         int                   `json:"total"`
}

// ListConversations handles listing the user's backend conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	// A fetch failure degrades to the last known list; the manager has
	// already logged it.
	force := r.URL.Query().Get("refresh") == "true"
	_ = m.LoadConversations(r.Context(), force)

	conversations := m.Conversations()
	if conversations == nil {
		conversations = []models.Conversation{}
	}

	h.JSON(w, http.StatusOK, ConversationListResponse{
		Conversations: conversations,
		Total:         len(conversations),
	})
}

// ResumeConversation handles loading a server-persisted thread into the
// live chat.
func (h *Handler) ResumeConversation(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := m.LoadConversation(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.Error(w, http.StatusBadGateway, "platform backend unavailable")
		return
	}

	h.JSON(w, http.StatusOK, ChatStateResponse{
		Messages:       m.Messages(),
		ConversationID: m.ConversationID(),
		VisitorID:      m.VisitorID().String(),
	})
}

// RemoveConversation handles dropping a conversation from the local list.
// With ?remote=true the backend is asked to archive it as well.
func (h *Handler) RemoveConversation(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	id := chi.URLParam(r, "id")
	remote := r.URL.Query().Get("remote") == "true"
	if err := m.RemoveConversation(r.Context(), id, remote); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to remove conversation")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
