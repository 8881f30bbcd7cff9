package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_sessions_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apex_sessions_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Session lifecycle metrics
	IdentityTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_sessions_identity_transitions_total",
			Help: "Identity transitions by type",
		},
		[]string{"type"}, // "login", "logout", or "switch"
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apex_sessions_created_total",
			Help: "Total sessions created",
		},
	)

	StatesRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apex_sessions_states_restored_total",
			Help: "Persisted chat states restored on session resume",
		},
	)

	StatesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_sessions_states_discarded_total",
			Help: "Persisted chat states discarded instead of restored",
		},
		[]string{"reason"}, // "stale_visitor", "empty", "fresh_login"
	)

	// Transcript metrics
	TranscriptsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apex_sessions_transcripts_saved_total",
			Help: "Transcripts archived",
		},
	)

	TranscriptsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apex_sessions_transcripts_deleted_total",
			Help: "Transcripts deleted by user action",
		},
	)

	// Backend integration metrics
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_sessions_backend_errors_total",
			Help: "Platform API call failures",
		},
		[]string{"endpoint"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_sessions_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
