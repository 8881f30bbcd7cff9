package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one entry in a chat transcript.
type Message struct {
	ID          string    `json:"id"`                    // ULID
	Role        string    `json:"role"`                  // "user" or "assistant"
	Content     string    `json:"content"`
	Suggestions []string  `json:"suggestions,omitempty"` // follow-up prompts attached to assistant replies
	Timestamp   time.Time `json:"timestamp"`
}
