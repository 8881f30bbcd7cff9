package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
)

type contextKey string

// Context keys set by RequireUser.
const (
	UserIDContextKey contextKey = "user_id"
	TokenContextKey  contextKey = "token"
)

// TokenCache caches token-to-user resolutions. RedisStore satisfies it.
type TokenCache interface {
	CacheAuthToken(ctx context.Context, tokenHash, userID string) error
	CachedAuthToken(ctx context.Context, tokenHash string) (string, error)
}

// Resolver turns a bearer token into a user profile. The apex client
// satisfies it.
type Resolver interface {
	Profile(ctx context.Context, token string) (*apex.ProfileResponse, error)
}

// AuthMiddleware resolves bearer tokens against the platform backend.
type AuthMiddleware struct {
	resolver Resolver
	cache    TokenCache
	logger   zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware. cache may be nil.
func NewAuthMiddleware(resolver Resolver, cache TokenCache, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver, cache: cache, logger: logger}
}

// RequireUser middleware rejects requests whose bearer token does not
// resolve to an authenticated platform user. The resolved user id and the
// raw token are placed on the request context.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := m.resolve(r.Context(), token)
		if err != nil {
			m.logger.Warn().Err(err).Msg("token resolution failed")
			jsonError(w, http.StatusBadGateway, "authentication backend unavailable")
			return
		}
		if userID == "" {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		ctx = context.WithValue(ctx, TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve maps a token to a user id, consulting the cache first.
func (m *AuthMiddleware) resolve(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)

	if m.cache != nil {
		if userID, err := m.cache.CachedAuthToken(ctx, hash); err == nil && userID != "" {
			return userID, nil
		}
	}

	profile, err := m.resolver.Profile(ctx, token)
	if err != nil {
		return "", err
	}
	if profile == nil {
		return "", nil
	}

	if m.cache != nil {
		if err := m.cache.CacheAuthToken(ctx, hash, profile.ID); err != nil {
			m.logger.Debug().Err(err).Msg("auth cache write failed")
		}
	}
	return profile.ID, nil
}

// hashToken derives the cache key for a token. Raw tokens never reach Redis.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UserID returns the authenticated user id from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDContextKey).(string)
	return id
}

// Token returns the bearer token from the request context.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
