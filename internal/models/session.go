package models

import (
	"time"

	"github.com/google/uuid"
)

// Session ties a logged-in user to the visitor id that scopes their
// persisted chat state. At most one session exists per user id.
type Session struct {
	VisitorID uuid.UUID `json:"visitor_id"`
	UserID    string    `json:"user_id"`
	LoginTime time.Time `json:"login_time"`
}
