package identity

import (
	"context"
	"sync"

	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
)

// ProfileSource resolves the current identity by asking the platform
// backend who a bearer token belongs to. An expired or revoked token
// reads as anonymous, which the watcher reports as a logout. The token
// is settable so that a session refreshing its credentials keeps the
// watcher reading with the live token instead of the login-time one.
type ProfileSource struct {
	client *apex.Client

	mu    sync.Mutex
	token string
}

// NewProfileSource creates a source reading with the given token.
func NewProfileSource(client *apex.Client, token string) *ProfileSource {
	return &ProfileSource{client: client, token: token}
}

// SetToken replaces the token used for subsequent reads.
func (s *ProfileSource) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Current implements Source.
func (s *ProfileSource) Current(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	profile, err := s.client.Profile(ctx, token)
	if err != nil {
		return "", err
	}
	if profile == nil {
		return "", nil
	}
	return profile.ID, nil
}
