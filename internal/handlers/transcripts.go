package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
	"github.com/mehetab-01/apex-ai-sub001/internal/session"
)

// TranscriptListResponse represents the transcript archive listing.
type TranscriptListResponse struct {
	Transcripts []models.Transcript `json:"transcripts"`
	Total       int                 `json:"total"`
}

// ListTranscripts handles listing the archive, most recent first.
func (h *Handler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	transcripts, err := m.Transcripts(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if transcripts == nil {
		transcripts = []models.Transcript{}
	}

	h.JSON(w, http.StatusOK, TranscriptListResponse{
		Transcripts: transcripts,
		Total:       len(transcripts),
	})
}

// RestoreTranscript handles loading an archived transcript into the live
// chat.
func (h *Handler) RestoreTranscript(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	id := chi.URLParam(r, "id")
	transcript, err := m.LoadTranscript(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "transcript not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, ChatStateResponse{
		Messages:  transcript.Messages,
		VisitorID: m.VisitorID().String(),
	})
}

// DeleteTranscript handles removing one archived transcript.
func (h *Handler) DeleteTranscript(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := m.DeleteTranscript(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "transcript not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
