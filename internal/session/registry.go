package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
	"github.com/mehetab-01/apex-ai-sub001/internal/identity"
	"github.com/mehetab-01/apex-ai-sub001/internal/metrics"
	"github.com/mehetab-01/apex-ai-sub001/internal/models"
	"github.com/mehetab-01/apex-ai-sub001/internal/store"
)

// Registry owns the live Managers, one per logged-in user, and applies
// identity transitions to them. Managers are created lazily on first
// resolve and torn down on logout.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
	watchers map[string]context.CancelFunc
	sources  map[string]*identity.ProfileSource

	db     store.DataStore
	cache  ConversationCache
	client *apex.Client
	logger zerolog.Logger

	// Identity watching, enabled via EnableWatching.
	watchCtx      context.Context
	snapshot      identity.SnapshotStore
	watchInterval time.Duration
}

// NewRegistry creates a registry. cache may be nil.
func NewRegistry(db store.DataStore, cache ConversationCache, client *apex.Client, logger zerolog.Logger) *Registry {
	return &Registry{
		managers: make(map[string]*Manager),
		watchers: make(map[string]context.CancelFunc),
		sources:  make(map[string]*identity.ProfileSource),
		db:       db,
		cache:    cache,
		client:   client,
		logger:   logger,
	}
}

// EnableWatching turns on per-session identity watching: each resolved
// session gets a watcher polling the platform backend with the session's
// token, and the registry consumes the published transitions. snapshot
// may be nil.
func (r *Registry) EnableWatching(ctx context.Context, snapshot identity.SnapshotStore, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchCtx = ctx
	r.snapshot = snapshot
	r.watchInterval = interval
}

// Resolve returns the Manager for a user, creating the session if needed.
//
// An existing session record means the user is resuming: its visitor id is
// reused and the persisted chat state is restored, but only when the state
// carries the same visitor id and at least one message. A missing session
// record means a fresh login: a new visitor id is generated and any
// leftover chat state is discarded, since it cannot be attributed to the
// new session safely.
func (r *Registry) Resolve(ctx context.Context, userID, token string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[userID]; ok {
		m.token = token
		// The watcher must read with the live token; a rotated or
		// refreshed credential would otherwise look like a logout once
		// the old one expires.
		if source, watching := r.sources[userID]; watching {
			source.SetToken(token)
		}
		return m, nil
	}

	sess, err := r.db.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		userID: userID,
		token:  token,
		db:     r.db,
		cache:  r.cache,
		client: r.client,
		logger: r.logger.With().Str("user_id", userID).Logger(),
	}

	if sess != nil {
		m.visitorID = sess.VisitorID
		r.restore(ctx, m)
	} else {
		m.visitorID = uuid.New()
		if err := r.db.PutSession(ctx, &models.Session{
			VisitorID: m.visitorID,
			UserID:    userID,
			LoginTime: time.Now(),
		}); err != nil {
			return nil, err
		}
		// Leftover state belongs to an older session of this user.
		if err := r.db.DeleteChatState(ctx, userID); err != nil {
			return nil, err
		}
		metrics.SessionsCreated.Inc()
		metrics.StatesDiscarded.WithLabelValues("fresh_login").Inc()
		m.logger.Info().Str("visitor_id", m.visitorID.String()).Msg("session created")
	}

	r.managers[userID] = m
	r.startWatcherLocked(userID, token)
	return m, nil
}

// startWatcherLocked spawns the identity watcher for a session. Callers
// hold r.mu. No-op unless watching is enabled.
func (r *Registry) startWatcherLocked(userID, token string) {
	if r.watchCtx == nil {
		return
	}
	if _, ok := r.watchers[userID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(r.watchCtx)
	r.watchers[userID] = cancel

	source := identity.NewProfileSource(r.client, token)
	r.sources[userID] = source
	watcher := identity.NewWatcher(userID, source, r.snapshot, r.watchInterval, r.logger)
	go watcher.Run(ctx)
	go r.Consume(ctx, watcher.Events())
}

// restore applies persisted chat state to a resumed session when valid.
func (r *Registry) restore(ctx context.Context, m *Manager) {
	state, err := r.db.LoadChatState(ctx, m.userID)
	if err != nil {
		m.logger.Warn().Err(err).Msg("chat state load failed")
		return
	}
	if state == nil {
		return
	}

	if state.VisitorID != m.visitorID.String() {
		metrics.StatesDiscarded.WithLabelValues("stale_visitor").Inc()
		m.logger.Info().Str("stored_visitor", state.VisitorID).Msg("discarding stale chat state")
		if err := r.db.DeleteChatState(ctx, m.userID); err != nil {
			m.logger.Warn().Err(err).Msg("stale chat state delete failed")
		}
		return
	}
	if len(state.Messages) == 0 {
		metrics.StatesDiscarded.WithLabelValues("empty").Inc()
		return
	}

	m.messages = state.Messages
	m.conversationID = state.ConversationID
	metrics.StatesRestored.Inc()
	m.logger.Info().Int("messages", len(state.Messages)).Msg("chat state restored")
}

// Logout tears down a user's session: live state is cleared and both the
// chat state and session records are deleted. Transcripts are retained
// deliberately.
func (r *Registry) Logout(ctx context.Context, userID string) error {
	r.mu.Lock()
	m, ok := r.managers[userID]
	delete(r.managers, userID)
	if cancel, watching := r.watchers[userID]; watching {
		cancel()
		delete(r.watchers, userID)
		delete(r.sources, userID)
	}
	r.mu.Unlock()

	if ok {
		m.mu.Lock()
		m.clearLocked()
		m.mu.Unlock()
	}

	if err := r.db.DeleteChatState(ctx, userID); err != nil {
		return err
	}
	if err := r.db.DeleteSession(ctx, userID); err != nil {
		return err
	}
	r.logger.Info().Str("user_id", userID).Msg("session ended")
	return nil
}

// Active reports whether a user currently has a live manager.
func (r *Registry) Active(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.managers[userID]
	return ok
}

// Consume applies identity events until the channel closes or ctx is
// cancelled. Login is lazy (the next resolve creates the session); logout
// tears the session down; a switch is a logout of the previous user, with
// the new user's session created on their next request.
func (r *Registry) Consume(ctx context.Context, events <-chan identity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.apply(ctx, ev)
		}
	}
}

// apply handles one identity event.
func (r *Registry) apply(ctx context.Context, ev identity.Event) {
	switch ev.Type {
	case identity.EventLogout:
		if err := r.Logout(ctx, ev.Previous); err != nil {
			r.logger.Warn().Err(err).Str("user_id", ev.Previous).Msg("logout teardown failed")
		}
	case identity.EventSwitch:
		if err := r.Logout(ctx, ev.Previous); err != nil {
			r.logger.Warn().Err(err).Str("user_id", ev.Previous).Msg("switch teardown failed")
		}
	case identity.EventLogin:
		// Session creation is deferred to the user's first request.
	}
}
