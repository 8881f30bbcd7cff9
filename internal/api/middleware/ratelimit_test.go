package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeCounter is an in-memory RateCounter.
type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int)}
}

func (c *fakeCounter) CheckRateLimit(ctx context.Context, key string, limit int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.counts[key] < limit, nil
}

func (c *fakeCounter) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.counts[key]++
	return nil
}

func (c *fakeCounter) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.counts))
	for k := range c.counts {
		out = append(out, k)
	}
	return out
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/chat/state", nil)
	if userID != "" {
		ctx := context.WithValue(req.Context(), UserIDContextKey, userID)
		req = req.WithContext(ctx)
	}
	return req
}

func TestRateLimitExceeded(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRateLimiter(counter, zerolog.Nop(), nil)
	handler := rl.Middleware(okHandler())

	// GET /chat/state allows 120 per minute.
	var rec *httptest.ResponseRecorder
	for i := 0; i < 121; i++ {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest("user-1"))
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}
}

func TestRateLimitKeyedPerUser(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRateLimiter(counter, zerolog.Nop(), nil)
	handler := rl.Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var userKeyed bool
	for _, key := range counter.keys() {
		if strings.Contains(key, ":user:user-1") {
			userKeyed = true
		}
		if strings.Contains(key, ":ip:") {
			t.Errorf("authenticated request counted by IP: %q", key)
		}
	}
	if !userKeyed {
		t.Error("authenticated request not counted per user")
	}

	// Another user on the same IP gets their own bucket.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("user-2"))
	var otherKeyed bool
	for _, key := range counter.keys() {
		if strings.Contains(key, ":user:user-2") {
			otherKeyed = true
		}
	}
	if !otherKeyed {
		t.Error("second user shares the first user's bucket")
	}
}

func TestRateLimitWhitelistBypass(t *testing.T) {
	counter := newFakeCounter()
	// httptest requests come from 192.0.2.1.
	rl := NewRateLimiter(counter, zerolog.Nop(), []string{"192.0.2.0/24"})
	handler := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(""))
		if rec.Code != http.StatusOK {
			t.Fatalf("whitelisted request %d rejected with %d", i, rec.Code)
		}
	}
	if len(counter.keys()) != 0 {
		t.Error("whitelisted requests should not be counted")
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("connection refused")
	rl := NewRateLimiter(counter, zerolog.Nop(), nil)
	handler := rl.Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("counter failure should fail open, got %d", rec.Code)
	}
}

func TestRateLimitDisabledWithoutCounter(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), nil)
	handler := rl.Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(""))
	if rec.Code != http.StatusOK {
		t.Fatalf("limiter without a counter should pass through, got %d", rec.Code)
	}
}
