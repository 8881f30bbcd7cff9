package handlers

import (
	"net/http"
	"time"
)

// StatsResponse represents the public stats response.
type StatsResponse struct {
	ActiveSessions   int64  `json:"active_sessions"`
	TranscriptsSaved int64  `json:"transcripts_saved"`
	LastActivity     string `json:"last_activity,omitempty"`
	GeneratedAt      string `json:"generated_at"`
}

// Stats handles the aggregate stats endpoint.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.db.CountSessions(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	transcripts, err := h.db.CountTranscripts(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := StatsResponse{
		ActiveSessions:   sessions,
		TranscriptsSaved: transcripts,
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	if last, err := h.db.MostRecentActivity(r.Context()); err == nil && last != nil {
		resp.LastActivity = last.UTC().Format(time.RFC3339)
	}

	h.JSON(w, http.StatusOK, resp)
}
