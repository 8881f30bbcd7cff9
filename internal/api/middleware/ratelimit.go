package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateCounter counts requests per bucket within a window. RedisStore
// satisfies it.
type RateCounter interface {
	CheckRateLimit(ctx context.Context, key string, limit int) (bool, error)
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) error
}

// RateLimiter implements per-endpoint rate limiting over a RateCounter.
// A nil counter disables limiting entirely (development).
type RateLimiter struct {
	counter   RateCounter
	logger    zerolog.Logger
	limits    map[string]RateLimit
	whitelist []*net.IPNet
	exactIPs  map[string]bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(counter RateCounter, logger zerolog.Logger, whitelist []string) *RateLimiter {
	rl := &RateLimiter{
		counter:  counter,
		logger:   logger,
		exactIPs: make(map[string]bool),
		limits: map[string]RateLimit{
			"GET /chat/state":          {120, time.Minute},
			"POST /chat/messages":      {30, time.Minute},
			"POST /chat/new":           {10, time.Minute},
			"POST /chat/archive":       {10, time.Minute},
			"GET /chat/transcripts":    {60, time.Minute},
			"GET /chat/conversations":  {60, time.Minute},
			"POST /chat/conversations": {60, time.Minute},
			"GET /stats":               {30, time.Minute},
		},
	}

	// Parse whitelist entries
	for _, entry := range whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.exactIPs[entry] = true
		}
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.exactIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// limitFor matches a request to its configured limit, longest prefix wins.
func (rl *RateLimiter) limitFor(r *http.Request) (string, RateLimit, bool) {
	pattern := r.Method + " " + r.URL.Path

	var bestKey string
	var best RateLimit
	for key, limit := range rl.limits {
		if strings.HasPrefix(pattern, key) && len(key) > len(bestKey) {
			bestKey = key
			best = limit
		}
	}
	if bestKey == "" {
		return "", RateLimit{}, false
	}
	return bestKey, best, true
}

// bucketFor keys the counter on the user when authenticated, the client
// IP otherwise.
func bucketFor(r *http.Request, endpoint string) string {
	if userID := UserID(r.Context()); userID != "" {
		return endpoint + ":user:" + userID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return endpoint + ":ip:" + ip
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.counter == nil {
			next.ServeHTTP(w, r)
			return
		}

		endpoint, limit, ok := rl.limitFor(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		bucket := bucketFor(r, endpoint)
		allowed, err := rl.counter.CheckRateLimit(r.Context(), bucket, limit.Requests)
		if err != nil {
			// Redis trouble fails open; limiting is protective, not load-bearing.
			rl.logger.Debug().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := rl.counter.IncrementRateLimit(r.Context(), bucket, limit.Window); err != nil {
			rl.logger.Debug().Err(err).Msg("rate limit increment failed")
		}

		next.ServeHTTP(w, r)
	})
}
