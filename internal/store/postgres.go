package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations applies the schema to the target database.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT PRIMARY KEY,
		visitor_id UUID NOT NULL,
		login_time TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_states (
		user_id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		messages JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		messages JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_user ON transcripts(user_id, created_at DESC);
	`

	_, err = conn.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetSession retrieves the session record for a user, nil if absent.
func (s *PostgresStore) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	session := &models.Session{}
	var visitorID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, visitor_id, login_time
		FROM sessions WHERE user_id = $1
	`, userID).Scan(
		&session.UserID,
		&visitorID,
		&session.LoginTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	session.VisitorID = visitorID
	return session, nil
}

// PutSession inserts or replaces the session record for a user.
func (s *PostgresStore) PutSession(ctx context.Context, session *models.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (user_id, visitor_id, login_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			visitor_id = EXCLUDED.visitor_id,
			login_time = EXCLUDED.login_time
	`, session.UserID, session.VisitorID, session.LoginTime)
	return err
}

// DeleteSession removes the session record for a user.
func (s *PostgresStore) DeleteSession(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// SaveChatState writes the full persisted chat state for a user.
func (s *PostgresStore) SaveChatState(ctx context.Context, userID string, state *models.ChatState) error {
	data, err := json.Marshal(state.Messages)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO chat_states (user_id, visitor_id, conversation_id, messages, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			visitor_id = EXCLUDED.visitor_id,
			conversation_id = EXCLUDED.conversation_id,
			messages = EXCLUDED.messages,
			updated_at = now()
	`, userID, state.VisitorID, state.ConversationID, data)
	return err
}

// LoadChatState reads the persisted chat state for a user, nil if absent.
func (s *PostgresStore) LoadChatState(ctx context.Context, userID string) (*models.ChatState, error) {
	state := &models.ChatState{}
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT visitor_id, conversation_id, messages
		FROM chat_states WHERE user_id = $1
	`, userID).Scan(
		&state.VisitorID,
		&state.ConversationID,
		&data,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &state.Messages); err != nil {
		return nil, nil
	}
	return state, nil
}

// DeleteChatState removes the persisted chat state for a user.
func (s *PostgresStore) DeleteChatState(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chat_states WHERE user_id = $1`, userID)
	return err
}

// SaveTranscript stores one archived transcript for a user.
func (s *PostgresStore) SaveTranscript(ctx context.Context, userID string, transcript *models.Transcript) error {
	data, err := json.Marshal(transcript.Messages)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transcripts (id, user_id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, transcript.ID, userID, transcript.Title, data, transcript.CreatedAt, transcript.UpdatedAt)
	return err
}

// ListTranscripts retrieves a user's archive, most recent first.
func (s *PostgresStore) ListTranscripts(ctx context.Context, userID string) ([]models.Transcript, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, messages, created_at, updated_at
		FROM transcripts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transcripts []models.Transcript
	for rows.Next() {
		var t models.Transcript
		var data []byte
		if err := rows.Scan(&t.ID, &t.Title, &data, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &t.Messages); err != nil {
			continue
		}
		transcripts = append(transcripts, t)
	}

	return transcripts, rows.Err()
}

// GetTranscript retrieves one archived transcript, nil if absent.
func (s *PostgresStore) GetTranscript(ctx context.Context, userID, id string) (*models.Transcript, error) {
	t := &models.Transcript{}
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, messages, created_at, updated_at
		FROM transcripts WHERE user_id = $1 AND id = $2
	`, userID, id).Scan(&t.ID, &t.Title, &data, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &t.Messages); err != nil {
		return nil, nil
	}
	return t, nil
}

// DeleteTranscript removes one archived transcript by id. Returns whether
// a row was actually deleted.
func (s *PostgresStore) DeleteTranscript(ctx context.Context, userID, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM transcripts WHERE user_id = $1 AND id = $2
	`, userID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountSessions returns the number of active sessions.
func (s *PostgresStore) CountSessions(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

// CountTranscripts returns the total number of archived transcripts.
func (s *PostgresStore) CountTranscripts(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&count)
	return count, err
}

// MostRecentActivity returns the most recent chat state write across all users.
func (s *PostgresStore) MostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(updated_at) FROM chat_states`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}
