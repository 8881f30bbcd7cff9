// Package session owns live chat session state: the in-memory message
// list, the active backend conversation id, and the locally archived
// transcript history, persisted through a DataStore and scoped by a
// per-login visitor id.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
	"github.com/mehetab-01/apex-ai-sub001/internal/metrics"
	"github.com/mehetab-01/apex-ai-sub001/internal/models"
	"github.com/mehetab-01/apex-ai-sub001/internal/store"
)

// ErrNotFound is returned when a transcript or conversation id does not
// resolve to anything the manager knows about.
var ErrNotFound = errors.New("not found")

// titleLimit is the maximum transcript title length before truncation.
const titleLimit = 50

// ConversationCache caches backend conversation lists. RedisStore
// satisfies it; a nil cache disables caching.
type ConversationCache interface {
	CacheConversations(ctx context.Context, userID string, conversations []models.Conversation) error
	CachedConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	InvalidateConversations(ctx context.Context, userID string) error
}

// Manager holds one user's live chat state. All mutations persist the
// mirrored chat state through the DataStore, subject to the persistence
// guard: nothing is written while the message list is empty, so an empty
// snapshot never overwrites a previous non-empty one.
type Manager struct {
	mu sync.Mutex

	userID    string
	token     string
	visitorID uuid.UUID

	messages       []models.Message
	conversationID string
	conversations  []models.Conversation

	db     store.DataStore
	cache  ConversationCache
	client *apex.Client
	logger zerolog.Logger
}

// UserID returns the owning user id.
func (m *Manager) UserID() string {
	return m.userID
}

// VisitorID returns the visitor id scoping this session's persisted state.
func (m *Manager) VisitorID() uuid.UUID {
	return m.visitorID
}

// Messages returns a copy of the current message list.
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ConversationID returns the active backend conversation id, "" if the
// chat has not been synced server-side.
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Conversations returns the last fetched backend conversation list.
func (m *Manager) Conversations() []models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Conversation, len(m.conversations))
	copy(out, m.conversations)
	return out
}

// normalize fills in a message's id and timestamp.
func normalize(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

// SetMessages replaces the message list wholesale.
func (m *Manager) SetMessages(ctx context.Context, messages []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		m.messages = append(m.messages, normalize(msg))
	}
	return m.persist(ctx)
}

// AddMessage appends one message.
func (m *Manager) AddMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg = normalize(msg)
	m.messages = append(m.messages, msg)
	return msg, m.persist(ctx)
}

// ClearMessages empties the message list and removes the stored chat
// state. This is the explicit path around the persistence guard: the
// conversation id is kept, only messages are dropped.
func (m *Manager) ClearMessages(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = nil
	return m.db.DeleteChatState(ctx, m.userID)
}

// persist mirrors the current state to the store. Callers hold m.mu.
// Writes are skipped while the visitor id is unset or the message list is
// empty.
func (m *Manager) persist(ctx context.Context) error {
	if m.visitorID == uuid.Nil || len(m.messages) == 0 {
		return nil
	}

	state := &models.ChatState{
		Messages:       m.messages,
		ConversationID: m.conversationID,
		VisitorID:      m.visitorID.String(),
	}
	return m.db.SaveChatState(ctx, m.userID, state)
}

// SetConversationID records the backend conversation the chat is synced to.
func (m *Manager) SetConversationID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversationID = id
	return m.persist(ctx)
}

// transcriptTitle derives an archive title from the first user message.
func transcriptTitle(messages []models.Message) string {
	for _, msg := range messages {
		if msg.Role != models.RoleUser {
			continue
		}
		runes := []rune(msg.Content)
		if len(runes) > titleLimit {
			return string(runes[:titleLimit]) + "..."
		}
		return msg.Content
	}
	return "New Chat"
}

// archiveCurrent snapshots the current messages into the transcript
// archive and clears the live and stored chat state. Returns the new
// transcript, nil when there was nothing to archive. Callers hold m.mu.
func (m *Manager) archiveCurrent(ctx context.Context) (*models.Transcript, error) {
	if len(m.messages) == 0 {
		return nil, nil
	}

	now := time.Now()
	transcript := &models.Transcript{
		ID:        ulid.Make().String(),
		Title:     transcriptTitle(m.messages),
		Messages:  m.messages,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.db.SaveTranscript(ctx, m.userID, transcript); err != nil {
		return nil, err
	}
	metrics.TranscriptsSaved.Inc()

	m.messages = nil
	m.conversationID = ""
	if err := m.db.DeleteChatState(ctx, m.userID); err != nil {
		return nil, err
	}
	return transcript, nil
}

// StartNewChat archives the current messages, clears state, and refreshes
// the backend conversation list.
func (m *Manager) StartNewChat(ctx context.Context) (*models.Transcript, error) {
	m.mu.Lock()
	transcript, err := m.archiveCurrent(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// List refresh is best-effort; the archive already succeeded.
	if err := m.LoadConversations(ctx, true); err != nil {
		m.logger.Warn().Err(err).Msg("conversation list refresh failed")
	}
	return transcript, nil
}

// SaveAndStartNewChat archives the current messages and clears state
// without touching the backend.
func (m *Manager) SaveAndStartNewChat(ctx context.Context) (*models.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.archiveCurrent(ctx)
}

// Transcripts returns the archive, most recent first.
func (m *Manager) Transcripts(ctx context.Context) ([]models.Transcript, error) {
	return m.db.ListTranscripts(ctx, m.userID)
}

// LoadTranscript replaces the live messages with an archived transcript's
// and clears the conversation id: archived transcripts are never linked
// back to a backend conversation.
func (m *Manager) LoadTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	transcript, err := m.db.GetTranscript(ctx, m.userID, id)
	if err != nil {
		return nil, err
	}
	if transcript == nil {
		return nil, ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = make([]models.Message, len(transcript.Messages))
	copy(m.messages, transcript.Messages)
	m.conversationID = ""
	if err := m.persist(ctx); err != nil {
		return nil, err
	}
	return transcript, nil
}

// DeleteTranscript removes one archived transcript by id.
func (m *Manager) DeleteTranscript(ctx context.Context, id string) error {
	deleted, err := m.db.DeleteTranscript(ctx, m.userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	metrics.TranscriptsDeleted.Inc()
	return nil
}

// LoadConversations fetches the backend conversation list. No-op without
// a user id. Unless force is set, a cached list is used when present.
func (m *Manager) LoadConversations(ctx context.Context, force bool) error {
	if m.userID == "" {
		return nil
	}

	if !force && m.cache != nil {
		cached, err := m.cache.CachedConversations(ctx, m.userID)
		if err == nil && cached != nil {
			m.mu.Lock()
			m.conversations = cached
			m.mu.Unlock()
			return nil
		}
	}

	summaries, err := m.client.ListConversations(ctx, m.token)
	if err != nil {
		metrics.BackendErrors.WithLabelValues("chat-history").Inc()
		m.logger.Warn().Err(err).Msg("failed to load conversations")
		return err
	}

	conversations := make([]models.Conversation, len(summaries))
	for i, s := range summaries {
		conversations[i] = models.Conversation{
			ID:        s.ID,
			Title:     s.Title,
			Provider:  s.Provider,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		}
	}

	m.mu.Lock()
	m.conversations = conversations
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.CacheConversations(ctx, m.userID, conversations); err != nil {
			m.logger.Debug().Err(err).Msg("conversation cache write failed")
		}
	}
	return nil
}

// LoadConversation resumes a server-persisted thread: fetches its
// messages, maps them into the local shape, and makes it the active
// conversation.
func (m *Manager) LoadConversation(ctx context.Context, id string) error {
	detail, err := m.client.GetConversation(ctx, m.token, id)
	if err != nil {
		metrics.BackendErrors.WithLabelValues("chat-history").Inc()
		var apiErr *apex.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return ErrNotFound
		}
		m.logger.Warn().Err(err).Str("conversation_id", id).Msg("failed to load conversation")
		return err
	}

	messages := make([]models.Message, len(detail.Messages))
	for i, msg := range detail.Messages {
		messages[i] = models.Message{
			ID:        strconv.FormatInt(msg.ID, 10),
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.CreatedAt,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = messages
	m.conversationID = id
	return m.persist(ctx)
}

// RemoveConversation drops a conversation from the in-memory list. If it
// was the active one, live messages and stored state are cleared too.
// When remote is set, the backend is asked to archive the conversation as
// well; otherwise no backend call is made.
func (m *Manager) RemoveConversation(ctx context.Context, id string, remote bool) error {
	if remote {
		if err := m.client.ArchiveConversation(ctx, m.token, id); err != nil {
			metrics.BackendErrors.WithLabelValues("chat-history").Inc()
			m.logger.Warn().Err(err).Str("conversation_id", id).Msg("backend archive failed")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.conversations[:0]
	for _, c := range m.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	m.conversations = kept

	if m.conversationID == id {
		m.messages = nil
		m.conversationID = ""
		if err := m.db.DeleteChatState(ctx, m.userID); err != nil {
			return err
		}
	}

	if m.cache != nil {
		if err := m.cache.InvalidateConversations(ctx, m.userID); err != nil {
			m.logger.Debug().Err(err).Msg("conversation cache invalidation failed")
		}
	}
	return nil
}

// Ask runs one study-guide round trip: the question is appended as a user
// message, sent to the backend with the active conversation id, and the
// reply is appended as an assistant message carrying the backend's
// follow-up suggestions. Both appended messages are returned; callers
// must not re-derive them from the list, which other requests may have
// appended to in the meantime.
func (m *Manager) Ask(ctx context.Context, question string) (userMsg, reply models.Message, err error) {
	userMsg = normalize(models.Message{Role: models.RoleUser, Content: question})

	m.mu.Lock()
	m.messages = append(m.messages, userMsg)
	conversationID := m.conversationID
	if err := m.persist(ctx); err != nil {
		m.mu.Unlock()
		return models.Message{}, models.Message{}, err
	}
	m.mu.Unlock()

	resp, err := m.client.AskGuide(ctx, m.token, apex.GuideRequest{
		Question:       question,
		ConversationID: conversationID,
	})
	if err != nil {
		metrics.BackendErrors.WithLabelValues("chat-guide").Inc()
		m.logger.Warn().Err(err).Msg("guide request failed")
		return models.Message{}, models.Message{}, err
	}

	reply = normalize(models.Message{
		Role:        models.RoleAssistant,
		Content:     resp.Response,
		Suggestions: resp.Suggestions,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, reply)
	if resp.ConversationID != "" {
		m.conversationID = resp.ConversationID
	}
	return userMsg, reply, m.persist(ctx)
}

// clearLocked wipes live state. Callers hold m.mu.
func (m *Manager) clearLocked() {
	m.messages = nil
	m.conversationID = ""
	m.conversations = nil
}
