package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
)

// MemoryStore is an in-memory DataStore used in tests and throwaway
// development runs. Data does not survive the process.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]models.Session
	states      map[string]models.ChatState
	transcripts map[string][]models.Transcript // per user, insertion order
	lastWrite   *time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]models.Session),
		states:      make(map[string]models.ChatState),
		transcripts: make(map[string][]models.Transcript),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping is a no-op.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// GetSession retrieves the session record for a user, nil if absent.
func (s *MemoryStore) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// PutSession inserts or replaces the session record for a user.
func (s *MemoryStore) PutSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = *session
	return nil
}

// DeleteSession removes the session record for a user.
func (s *MemoryStore) DeleteSession(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// SaveChatState writes the full persisted chat state for a user.
func (s *MemoryStore) SaveChatState(ctx context.Context, userID string, state *models.ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	copied.Messages = append([]models.Message(nil), state.Messages...)
	s.states[userID] = copied
	now := time.Now()
	s.lastWrite = &now
	return nil
}

// LoadChatState reads the persisted chat state for a user, nil if absent.
func (s *MemoryStore) LoadChatState(ctx context.Context, userID string) (*models.ChatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	copied := state
	copied.Messages = append([]models.Message(nil), state.Messages...)
	return &copied, nil
}

// DeleteChatState removes the persisted chat state for a user.
func (s *MemoryStore) DeleteChatState(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// SaveTranscript stores one archived transcript for a user.
func (s *MemoryStore) SaveTranscript(ctx context.Context, userID string, transcript *models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *transcript
	copied.Messages = append([]models.Message(nil), transcript.Messages...)
	s.transcripts[userID] = append(s.transcripts[userID], copied)
	return nil
}

// ListTranscripts retrieves a user's archive, most recent first.
func (s *MemoryStore) ListTranscripts(ctx context.Context, userID string) ([]models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.transcripts[userID]
	out := make([]models.Transcript, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// GetTranscript retrieves one archived transcript, nil if absent.
func (s *MemoryStore) GetTranscript(ctx context.Context, userID, id string) (*models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transcripts[userID] {
		if t.ID == id {
			copied := t
			copied.Messages = append([]models.Message(nil), t.Messages...)
			return &copied, nil
		}
	}
	return nil, nil
}

// DeleteTranscript removes one archived transcript by id.
func (s *MemoryStore) DeleteTranscript(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.transcripts[userID]
	for i, t := range stored {
		if t.ID == id {
			s.transcripts[userID] = append(stored[:i:i], stored[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// CountSessions returns the number of active sessions.
func (s *MemoryStore) CountSessions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sessions)), nil
}

// CountTranscripts returns the total number of archived transcripts.
func (s *MemoryStore) CountTranscripts(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, list := range s.transcripts {
		total += int64(len(list))
	}
	return total, nil
}

// MostRecentActivity returns the most recent chat state write.
func (s *MemoryStore) MostRecentActivity(ctx context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrite, nil
}
