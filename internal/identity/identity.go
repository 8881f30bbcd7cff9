// Package identity detects login, logout, and account-switch transitions
// and publishes them as explicit events. Consumers subscribe to an event
// channel instead of polling the authentication state themselves.
package identity

import (
	"context"
	"sync"
)

// Event types.
const (
	EventLogin  = "login"
	EventLogout = "logout"
	EventSwitch = "switch"
)

// Event describes one observed identity transition.
type Event struct {
	Type     string // login, logout, or switch
	UserID   string // the user after the transition ("" for logout)
	Previous string // the user before the transition ("" for login)
}

// Source yields the currently authenticated user id, "" when anonymous.
type Source interface {
	Current(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (string, error)

// Current implements Source.
func (f SourceFunc) Current(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticSource is a settable in-memory source, used in tests and for
// wiring identity changes by hand.
type StaticSource struct {
	mu     sync.Mutex
	userID string
}

// NewStaticSource creates a StaticSource with an initial user id.
func NewStaticSource(userID string) *StaticSource {
	return &StaticSource{userID: userID}
}

// Current implements Source.
func (s *StaticSource) Current(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, nil
}

// Set changes the user id the source reports. "" means anonymous.
func (s *StaticSource) Set(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// Classify maps an observed (previous, current) identity pair to a
// transition. The empty string and false mean no transition occurred.
func Classify(previous, current string) (Event, bool) {
	switch {
	case previous == current:
		return Event{}, false
	case previous == "":
		return Event{Type: EventLogin, UserID: current}, true
	case current == "":
		return Event{Type: EventLogout, Previous: previous}, true
	default:
		return Event{Type: EventSwitch, UserID: current, Previous: previous}, true
	}
}
