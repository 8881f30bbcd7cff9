package identity

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/metrics"
)

// DefaultInterval matches the poll cadence of the original widget.
const DefaultInterval = 500 * time.Millisecond

// SnapshotStore persists the last-observed identity so a restart does not
// re-announce a login that already happened. RedisStore satisfies it.
type SnapshotStore interface {
	LastIdentity(ctx context.Context, watcherID string) (string, bool, error)
	SetLastIdentity(ctx context.Context, watcherID, userID string) error
}

// Watcher polls a Source on a fixed interval and publishes transitions on
// an event channel. It collapses the poll loop into explicit login, logout,
// and switch events so consumers never see the raw identity samples.
type Watcher struct {
	id       string
	source   Source
	snapshot SnapshotStore
	interval time.Duration
	logger   zerolog.Logger

	events chan Event
	last   string
	seeded bool
}

// NewWatcher creates a watcher. snapshot may be nil, in which case the
// first observation after startup is treated as the baseline.
func NewWatcher(id string, source Source, snapshot SnapshotStore, interval time.Duration, logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		id:       id,
		source:   source,
		snapshot: snapshot,
		interval: interval,
		logger:   logger,
		events:   make(chan Event, 16),
	}
}

// Events returns the channel transitions are published on. It is closed
// when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	w.seed(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.observe(ctx)
		}
	}
}

// seed restores the last-observed identity from the snapshot store.
func (w *Watcher) seed(ctx context.Context) {
	if w.snapshot == nil {
		return
	}
	last, found, err := w.snapshot.LastIdentity(ctx, w.id)
	if err != nil {
		w.logger.Warn().Err(err).Msg("identity snapshot unavailable")
		return
	}
	if found {
		w.last = last
		w.seeded = true
	}
}

// observe samples the source once and publishes a transition if one
// occurred. Source errors leave the last-observed value untouched.
func (w *Watcher) observe(ctx context.Context) {
	current, err := w.source.Current(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Msg("identity source check failed")
		return
	}

	// The first sample after a cold start becomes the baseline.
	if !w.seeded {
		w.last = current
		w.seeded = true
		w.record(ctx, current)
		return
	}

	event, changed := Classify(w.last, current)
	w.last = current
	if !changed {
		return
	}

	w.record(ctx, current)
	metrics.IdentityTransitions.WithLabelValues(event.Type).Inc()
	w.logger.Info().
		Str("type", event.Type).
		Str("user_id", event.UserID).
		Str("previous", event.Previous).
		Msg("identity transition")

	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}

// record writes the snapshot, best-effort.
func (w *Watcher) record(ctx context.Context, userID string) {
	if w.snapshot == nil {
		return
	}
	if err := w.snapshot.SetLastIdentity(ctx, w.id, userID); err != nil {
		w.logger.Debug().Err(err).Msg("identity snapshot write failed")
	}
}
