package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
	"github.com/mehetab-01/apex-ai-sub001/internal/models"
	"github.com/mehetab-01/apex-ai-sub001/internal/store"
)

func newTestRegistry(t *testing.T, baseURL string) (*Registry, *store.MemoryStore) {
	t.Helper()
	db := store.NewMemoryStore()
	client := apex.NewClient(baseURL)
	return NewRegistry(db, nil, client, zerolog.Nop()), db
}

func resolveManager(t *testing.T, r *Registry, userID string) *Manager {
	t.Helper()
	m, err := r.Resolve(context.Background(), userID, "test-token")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestAddMessagePreservesOrder(t *testing.T) {
	r, _ := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: c}); err != nil {
			t.Fatal(err)
		}
	}

	msgs := m.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, c := range contents {
		if msgs[i].Content != c {
			t.Errorf("message %d: expected %q, got %q", i, c, msgs[i].Content)
		}
		if msgs[i].Timestamp.IsZero() {
			t.Errorf("message %d: timestamp not normalized", i)
		}
		if msgs[i].ID == "" {
			t.Errorf("message %d: id not assigned", i)
		}
	}
}

func TestSetMessagesNormalizesTimestamps(t *testing.T) {
	r, _ := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")

	err := m.SetMessages(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs := m.Messages()
	if msgs[0].Timestamp.IsZero() {
		t.Error("zero timestamp should be replaced")
	}
	if !msgs[1].Timestamp.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("concrete timestamp should be preserved")
	}
}

func TestEmptyStateNotPersisted(t *testing.T) {
	r, db := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: "keep me"}); err != nil {
		t.Fatal(err)
	}

	// A wholesale replace with nothing must not clobber the stored state.
	if err := m.SetMessages(ctx, nil); err != nil {
		t.Fatal(err)
	}

	state, err := db.LoadChatState(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if state == nil || len(state.Messages) != 1 || state.Messages[0].Content != "keep me" {
		t.Fatalf("stored state should still hold the earlier message, got %+v", state)
	}
}

func TestClearMessagesDeletesStoredState(t *testing.T) {
	r, db := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: "bye"}); err != nil {
		t.Fatal(err)
	}
	if err := m.ClearMessages(ctx); err != nil {
		t.Fatal(err)
	}

	if len(m.Messages()) != 0 {
		t.Error("messages should be empty")
	}
	state, _ := db.LoadChatState(ctx, "user-1")
	if state != nil {
		t.Error("stored state should be deleted")
	}
}

func TestStartNewChatArchivesTranscript(t *testing.T) {
	// The refresh after archiving hits the conversation list endpoint.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success", "conversations": []interface{}{}})
	}))
	defer backend.Close()

	r, db := newTestRegistry(t, backend.URL)
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	long := strings.Repeat("x", 80)
	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: long}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleAssistant, Content: "answer"}); err != nil {
		t.Fatal(err)
	}

	transcript, err := m.StartNewChat(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if transcript == nil {
		t.Fatal("expected a transcript")
	}

	want := strings.Repeat("x", 50) + "..."
	if transcript.Title != want {
		t.Errorf("title: expected %q, got %q", want, transcript.Title)
	}
	if len(transcript.Messages) != 2 {
		t.Errorf("expected 2 archived messages, got %d", len(transcript.Messages))
	}
	if len(m.Messages()) != 0 {
		t.Error("live messages should be empty after archiving")
	}

	archive, err := db.ListTranscripts(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(archive) != 1 || archive[0].ID != transcript.ID {
		t.Fatalf("expected exactly the new transcript in the archive, got %d entries", len(archive))
	}

	state, _ := db.LoadChatState(ctx, "user-1")
	if state != nil {
		t.Error("stored chat state should be gone after archiving")
	}
}

func TestStartNewChatWithNoMessages(t *testing.T) {
	r, db := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")

	transcript, err := m.SaveAndStartNewChat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if transcript != nil {
		t.Error("nothing to archive, no transcript expected")
	}

	archive, _ := db.ListTranscripts(context.Background(), "user-1")
	if len(archive) != 0 {
		t.Error("archive should stay empty")
	}
}

func TestTranscriptTitle(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
		want     string
	}{
		{
			"short user message",
			[]models.Message{{Role: models.RoleUser, Content: "help me study"}},
			"help me study",
		},
		{
			"exactly fifty",
			[]models.Message{{Role: models.RoleUser, Content: strings.Repeat("a", 50)}},
			strings.Repeat("a", 50),
		},
		{
			"truncated",
			[]models.Message{{Role: models.RoleUser, Content: strings.Repeat("a", 51)}},
			strings.Repeat("a", 50) + "...",
		},
		{
			"skips assistant messages",
			[]models.Message{
				{Role: models.RoleAssistant, Content: "welcome"},
				{Role: models.RoleUser, Content: "actual question"},
			},
			"actual question",
		},
		{
			"no user message",
			[]models.Message{{Role: models.RoleAssistant, Content: "welcome"}},
			"New Chat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transcriptTitle(tt.messages); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoadTranscript(t *testing.T) {
	r, _ := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: "old chat"}); err != nil {
		t.Fatal(err)
	}
	transcript, err := m.SaveAndStartNewChat(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// New live chat linked to a backend conversation.
	if err := m.SetConversationID(ctx, "conv-42"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: "new chat"}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.LoadTranscript(ctx, transcript.ID); err != nil {
		t.Fatal(err)
	}

	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Content != "old chat" {
		t.Fatalf("expected the archived message, got %+v", msgs)
	}
	if m.ConversationID() != "" {
		t.Error("conversation id should be cleared when restoring a transcript")
	}
}

func TestLoadTranscriptNotFound(t *testing.T) {
	r, _ := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")

	if _, err := m.LoadTranscript(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTranscriptRemovesExactlyOne(t *testing.T) {
	r, _ := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: content}); err != nil {
			t.Fatal(err)
		}
		transcript, err := m.SaveAndStartNewChat(ctx)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, transcript.ID)
	}

	if err := m.DeleteTranscript(ctx, ids[1]); err != nil {
		t.Fatal(err)
	}

	archive, err := m.Transcripts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(archive) != 2 {
		t.Fatalf("expected 2 transcripts left, got %d", len(archive))
	}
	// Most recent first, relative order of survivors unchanged.
	if archive[0].ID != ids[2] || archive[1].ID != ids[0] {
		t.Errorf("unexpected archive order: %s, %s", archive[0].ID, archive[1].ID)
	}

	if err := m.DeleteTranscript(ctx, ids[1]); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAskRoundTrip(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/chat-guide/" {
			http.NotFound(w, req)
			return
		}
		var body struct {
			Question       string `json:"question"`
			ConversationID string `json:"conversation_id"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":          "success",
			"response":        "answer to: " + body.Question,
			"provider":        "gemini",
			"suggestions":     []string{"Explore related courses on this topic"},
			"conversation_id": "conv-7",
		})
	}))
	defer backend.Close()

	r, db := newTestRegistry(t, backend.URL)
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	userMsg, reply, err := m.Ask(ctx, "what is recursion?")
	if err != nil {
		t.Fatal(err)
	}

	if userMsg.Role != models.RoleUser || userMsg.Content != "what is recursion?" {
		t.Errorf("unexpected user message: %+v", userMsg)
	}
	if reply.Role != models.RoleAssistant {
		t.Errorf("expected assistant role, got %q", reply.Role)
	}
	if reply.Content != "answer to: what is recursion?" {
		t.Errorf("unexpected reply content %q", reply.Content)
	}
	if len(reply.Suggestions) != 1 {
		t.Errorf("expected suggestions to be carried over, got %v", reply.Suggestions)
	}

	msgs := m.Messages()
	if len(msgs) != 2 || msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("expected user+assistant pair, got %d messages", len(msgs))
	}
	if msgs[0].ID != userMsg.ID {
		t.Error("returned user message is not the appended one")
	}
	if m.ConversationID() != "conv-7" {
		t.Errorf("conversation id not adopted, got %q", m.ConversationID())
	}

	state, _ := db.LoadChatState(ctx, "user-1")
	if state == nil || state.ConversationID != "conv-7" || len(state.Messages) != 2 {
		t.Fatalf("persisted state out of sync: %+v", state)
	}
}

func TestAskReturnsItsOwnUserMessage(t *testing.T) {
	// The backend appends a message to the same session mid-flight, the
	// way a concurrent request would.
	var m *Manager
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/chat-guide/" {
			http.NotFound(w, req)
			return
		}
		if _, err := m.AddMessage(req.Context(), models.Message{Role: models.RoleUser, Content: "interleaved"}); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "success",
			"response": "answer",
		})
	}))
	defer backend.Close()

	r, _ := newTestRegistry(t, backend.URL)
	m = resolveManager(t, r, "user-1")

	userMsg, reply, err := m.Ask(context.Background(), "original question")
	if err != nil {
		t.Fatal(err)
	}
	if userMsg.Content != "original question" {
		t.Fatalf("got someone else's message: %+v", userMsg)
	}
	if reply.Content != "answer" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// Second-from-last is the interleaved message, not the question.
	msgs := m.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[len(msgs)-2].Content == userMsg.Content {
		t.Error("interleaved append did not land between question and reply")
	}
}

func TestLoadConversationReplacesState(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, "/api/chat-history/") {
			http.NotFound(w, req)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "success",
			"conversation": map[string]interface{}{"id": "conv-9", "title": "Study plan"},
			"messages": []map[string]interface{}{
				{"id": 1, "role": "user", "content": "make me a plan", "created_at": "2026-02-01T10:00:00Z"},
				{"id": 2, "role": "assistant", "content": "here you go", "created_at": "2026-02-01T10:00:05Z"},
			},
		})
	}))
	defer backend.Close()

	r, _ := newTestRegistry(t, backend.URL)
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: "scratch"}); err != nil {
		t.Fatal(err)
	}

	if err := m.LoadConversation(ctx, "conv-9"); err != nil {
		t.Fatal(err)
	}

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 mapped messages, got %d", len(msgs))
	}
	if msgs[0].Content != "make me a plan" || msgs[1].Role != models.RoleAssistant {
		t.Errorf("messages not mapped correctly: %+v", msgs)
	}
	if m.ConversationID() != "conv-9" {
		t.Errorf("expected active conversation conv-9, got %q", m.ConversationID())
	}
}

func TestRemoveActiveConversationClearsState(t *testing.T) {
	r, db := newTestRegistry(t, "http://backend.invalid")
	m := resolveManager(t, r, "user-1")
	ctx := context.Background()

	if err := m.SetConversationID(ctx, "conv-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: "hello"}); err != nil {
		t.Fatal(err)
	}

	if err := m.RemoveConversation(ctx, "conv-1", false); err != nil {
		t.Fatal(err)
	}

	if len(m.Messages()) != 0 || m.ConversationID() != "" {
		t.Error("active conversation removal should clear live state")
	}
	state, _ := db.LoadChatState(ctx, "user-1")
	if state != nil {
		t.Error("stored state should be deleted")
	}
}
