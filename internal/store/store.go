package store

import (
	"context"
	"time"

	"github.com/mehetab-01/apex-ai-sub001/internal/models"
)

// DataStore defines the interface for durable storage of sessions, persisted
// chat state, and the transcript archive. Both PostgresStore and SQLiteStore
// implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Session operations
	GetSession(ctx context.Context, userID string) (*models.Session, error)
	PutSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, userID string) error

	// Chat state operations
	SaveChatState(ctx context.Context, userID string, state *models.ChatState) error
	LoadChatState(ctx context.Context, userID string) (*models.ChatState, error)
	DeleteChatState(ctx context.Context, userID string) error

	// Transcript archive operations
	SaveTranscript(ctx context.Context, userID string, transcript *models.Transcript) error
	ListTranscripts(ctx context.Context, userID string) ([]models.Transcript, error)
	GetTranscript(ctx context.Context, userID, id string) (*models.Transcript, error)
	DeleteTranscript(ctx context.Context, userID, id string) (bool, error)

	// Aggregates for the stats endpoint
	CountSessions(ctx context.Context) (int64, error)
	CountTranscripts(ctx context.Context) (int64, error)
	MostRecentActivity(ctx context.Context) (*time.Time, error)
}
