package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/api/middleware"
	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
	"github.com/mehetab-01/apex-ai-sub001/internal/session"
	"github.com/mehetab-01/apex-ai-sub001/internal/store"
)

// newTestRouter mounts the chat routes with an auth stub that injects a
// fixed user.
func newTestRouter(t *testing.T, backendURL string) (*chi.Mux, *store.MemoryStore) {
	t.Helper()

	db := store.NewMemoryStore()
	client := apex.NewClient(backendURL)
	registry := session.NewRegistry(db, nil, client, zerolog.Nop())
	h := NewHandler(db, nil, registry, client)

	asUser := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDContextKey, "user-1")
			ctx = context.WithValue(ctx, middleware.TokenContextKey, "tok")
			next(w, r.WithContext(ctx))
		}
	}

	r := chi.NewRouter()
	r.Get("/chat/state", asUser(h.GetChatState))
	r.Post("/chat/messages", asUser(h.PostMessage))
	r.Delete("/chat/messages", asUser(h.ClearMessages))
	r.Post("/chat/archive", asUser(h.SaveAndStartNewChat))
	r.Get("/chat/transcripts", asUser(h.ListTranscripts))
	r.Post("/chat/transcripts/{id}/restore", asUser(h.RestoreTranscript))
	r.Delete("/chat/transcripts/{id}", asUser(h.DeleteTranscript))
	r.Get("/stats", h.Stats)

	// Unauthenticated variant for the 401 check.
	r.Get("/anon/state", h.GetChatState)

	return r, db
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetChatStateRequiresUser(t *testing.T) {
	router, _ := newTestRouter(t, "http://backend.invalid")

	rec := doJSON(t, router, http.MethodGet, "/anon/state", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPostMessageAndState(t *testing.T) {
	router, _ := newTestRouter(t, "http://backend.invalid")

	rec := doJSON(t, router, http.MethodPost, "/chat/messages", `{"content":"hello there"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var posted PostMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &posted); err != nil {
		t.Fatal(err)
	}
	if posted.Message.Content != "hello there" || posted.Message.ID == "" {
		t.Errorf("unexpected message: %+v", posted.Message)
	}

	rec = doJSON(t, router, http.MethodGet, "/chat/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var state ChatStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if len(state.Messages) != 1 || state.Messages[0].ID != posted.Message.ID {
		t.Errorf("state out of sync: %+v", state)
	}
	if state.VisitorID == "" {
		t.Error("visitor id missing from state")
	}
}

func TestPostMessageAsk(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat-guide/" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "success",
			"response":    "a goroutine is a lightweight thread",
			"suggestions": []string{"What is a channel?"},
		})
	}))
	defer backend.Close()

	router, _ := newTestRouter(t, backend.URL)

	rec := doJSON(t, router, http.MethodPost, "/chat/messages", `{"content":"what is a goroutine?","ask":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var posted PostMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &posted); err != nil {
		t.Fatal(err)
	}
	if posted.Message.Content != "what is a goroutine?" || posted.Message.Role != "user" {
		t.Errorf("response message is not the asked question: %+v", posted.Message)
	}
	if posted.Reply == nil || posted.Reply.Content != "a goroutine is a lightweight thread" {
		t.Errorf("unexpected reply: %+v", posted.Reply)
	}
	if posted.Reply != nil && len(posted.Reply.Suggestions) != 1 {
		t.Errorf("suggestions not carried: %+v", posted.Reply)
	}
}

func TestPostMessageValidation(t *testing.T) {
	router, _ := newTestRouter(t, "http://backend.invalid")

	rec := doJSON(t, router, http.MethodPost, "/chat/messages", `{"content":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank content: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/chat/messages", `{broken`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", rec.Code)
	}
}

func TestArchiveRestoreDeleteFlow(t *testing.T) {
	router, _ := newTestRouter(t, "http://backend.invalid")

	doJSON(t, router, http.MethodPost, "/chat/messages", `{"content":"archive this chat"}`)

	rec := doJSON(t, router, http.MethodPost, "/chat/archive", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: expected 200, got %d", rec.Code)
	}
	var archived NewChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &archived); err != nil {
		t.Fatal(err)
	}
	if !archived.Archived || archived.Transcript == nil {
		t.Fatalf("expected a transcript, got %+v", archived)
	}
	if archived.Transcript.Title != "archive this chat" {
		t.Errorf("unexpected title %q", archived.Transcript.Title)
	}

	// Live state is now empty.
	rec = doJSON(t, router, http.MethodGet, "/chat/state", "")
	var state ChatStateResponse
	json.Unmarshal(rec.Body.Bytes(), &state)
	if len(state.Messages) != 0 {
		t.Error("live messages should be empty after archiving")
	}

	// The archive lists it.
	rec = doJSON(t, router, http.MethodGet, "/chat/transcripts", "")
	var list TranscriptListResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Total != 1 {
		t.Fatalf("expected 1 transcript, got %d", list.Total)
	}

	// Restore brings the messages back.
	rec = doJSON(t, router, http.MethodPost, "/chat/transcripts/"+archived.Transcript.ID+"/restore", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d", rec.Code)
	}

	// Delete removes it; a second delete is a 404.
	rec = doJSON(t, router, http.MethodDelete, "/chat/transcripts/"+archived.Transcript.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, "/chat/transcripts/"+archived.Transcript.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestRestoreUnknownTranscript(t *testing.T) {
	router, _ := newTestRouter(t, "http://backend.invalid")

	rec := doJSON(t, router, http.MethodPost, "/chat/transcripts/does-not-exist/restore", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	router, _ := newTestRouter(t, "http://backend.invalid")

	doJSON(t, router, http.MethodPost, "/chat/messages", `{"content":"count me"}`)
	doJSON(t, router, http.MethodPost, "/chat/archive", "")

	rec := doJSON(t, router, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.ActiveSessions != 1 || stats.TranscriptsSaved != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
