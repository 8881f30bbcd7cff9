package models

import "time"

// Transcript is a locally archived snapshot of a finished chat. Transcripts
// are independent of backend conversations, survive logout, and are only
// ever removed by explicit user action.
type Transcript struct {
	ID        string    `json:"id"` // ULID
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
