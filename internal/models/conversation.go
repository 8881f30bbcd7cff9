package models

import "time"

// Conversation is a backend-owned chat thread summary. The gateway treats
// it as opaque, fetching lists and message bodies through the platform API.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Provider  string    `json:"ai_provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
