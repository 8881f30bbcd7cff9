package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/apex-sessions.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/apex-sessions.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		login_time DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_states (
		user_id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		conversation_id TEXT DEFAULT '',
		messages TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		messages TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_user ON transcripts(user_id, created_at DESC);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves the session record for a user, nil if absent.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	session := &models.Session{}
	var visitorStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, visitor_id, login_time
		FROM sessions WHERE user_id = ?
	`, userID).Scan(
		&session.UserID,
		&visitorStr,
		&session.LoginTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	visitorID, err := uuid.Parse(visitorStr)
	if err != nil {
		return nil, err
	}
	session.VisitorID = visitorID
	return session, nil
}

// PutSession inserts or replaces the session record for a user.
func (s *SQLiteStore) PutSession(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, visitor_id, login_time)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			visitor_id = excluded.visitor_id,
			login_time = excluded.login_time
	`, session.UserID, session.VisitorID.String(), session.LoginTime)
	return err
}

// DeleteSession removes the session record for a user.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// SaveChatState writes the full persisted chat state for a user.
func (s *SQLiteStore) SaveChatState(ctx context.Context, userID string, state *models.ChatState) error {
	data, err := json.Marshal(state.Messages)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_states (user_id, visitor_id, conversation_id, messages, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			visitor_id = excluded.visitor_id,
			conversation_id = excluded.conversation_id,
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`, userID, state.VisitorID, state.ConversationID, string(data), time.Now())
	return err
}

// LoadChatState reads the persisted chat state for a user, nil if absent
// or if the stored message payload is malformed.
func (s *SQLiteStore) LoadChatState(ctx context.Context, userID string) (*models.ChatState, error) {
	state := &models.ChatState{}
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT visitor_id, conversation_id, messages
		FROM chat_states WHERE user_id = ?
	`, userID).Scan(
		&state.VisitorID,
		&state.ConversationID,
		&data,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	// Malformed payloads are treated as absent rather than surfaced.
	if err := json.Unmarshal([]byte(data), &state.Messages); err != nil {
		return nil, nil
	}
	return state, nil
}

// DeleteChatState removes the persisted chat state for a user.
func (s *SQLiteStore) DeleteChatState(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_states WHERE user_id = ?`, userID)
	return err
}

// SaveTranscript stores one archived transcript for a user.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, userID string, transcript *models.Transcript) error {
	data, err := json.Marshal(transcript.Messages)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, user_id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, transcript.ID, userID, transcript.Title, string(data), transcript.CreatedAt, transcript.UpdatedAt)
	return err
}

// ListTranscripts retrieves a user's archive, most recent first.
func (s *SQLiteStore) ListTranscripts(ctx context.Context, userID string) ([]models.Transcript, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, messages, created_at, updated_at
		FROM transcripts
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transcripts []models.Transcript
	for rows.Next() {
		var t models.Transcript
		var data string
		if err := rows.Scan(&t.ID, &t.Title, &data, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &t.Messages); err != nil {
			continue
		}
		transcripts = append(transcripts, t)
	}

	return transcripts, rows.Err()
}

// GetTranscript retrieves one archived transcript, nil if absent.
func (s *SQLiteStore) GetTranscript(ctx context.Context, userID, id string) (*models.Transcript, error) {
	t := &models.Transcript{}
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, messages, created_at, updated_at
		FROM transcripts WHERE user_id = ? AND id = ?
	`, userID, id).Scan(&t.ID, &t.Title, &data, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &t.Messages); err != nil {
		return nil, nil
	}
	return t, nil
}

// DeleteTranscript removes one archived transcript by id. Returns whether
// a row was actually deleted.
func (s *SQLiteStore) DeleteTranscript(ctx context.Context, userID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transcripts WHERE user_id = ? AND id = ?
	`, userID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountSessions returns the number of active sessions.
func (s *SQLiteStore) CountSessions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

// CountTranscripts returns the total number of archived transcripts.
func (s *SQLiteStore) CountTranscripts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&count)
	return count, err
}

// MostRecentActivity returns the most recent chat state write across all
// users, nil when no state has ever been written. The column is selected
// directly rather than through MAX(): aggregates lose the DATETIME
// decltype and the driver would hand back a string.
func (s *SQLiteStore) MostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT updated_at FROM chat_states
		ORDER BY updated_at DESC LIMIT 1
	`).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
