package common

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/embucket/embucket/internal/config"
)

// rateLimitStore manages rate limit counters in memory, one bucket per
// caller+endpoint key.
type rateLimitStore struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	count     int
	resetTime time.Time
}

func newRateLimitStore() *rateLimitStore {
	s := &rateLimitStore{buckets: make(map[string]*bucket)}
	go s.cleanup()
	return s
}

func (s *rateLimitStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for key, b := range s.buckets {
			if now.After(b.resetTime) {
				delete(s.buckets, key)
			}
		}
		s.mu.Unlock()
	}
}

func (s *rateLimitStore) allow(key string, limit int, window time.Duration) (bool, *bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, exists := s.buckets[key]
	if !exists || now.After(b.resetTime) {
		b = &bucket{count: 1, resetTime: now.Add(window)}
		s.buckets[key] = b
		return true, b
	}
	if b.count >= limit {
		return false, b
	}
	b.count++
	return true, b
}

var (
	globalRateLimitStore *rateLimitStore
	rateLimitOnce        sync.Once
)

func initRateLimitStore() *rateLimitStore {
	rateLimitOnce.Do(func() {
		globalRateLimitStore = newRateLimitStore()
	})
	return globalRateLimitStore
}

// WithRateLimit caps requests per caller (or remote IP, pre-auth) per
// endpoint to limit requests every window. A disabled cfg.RateLimit
// makes this a no-op, matching the teacher's opt-in rate limiting.
func WithRateLimit(cfg *config.Config, limit int, windowSecs int) func(http.HandlerFunc) http.HandlerFunc {
	if !cfg.RateLimit.Enabled {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	store := initRateLimitStore()
	window := time.Duration(windowSecs) * time.Second

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id := "ip:" + r.RemoteAddr
			if caller, ok := Caller(r.Context()); ok && caller != AnonymousCaller {
				id = "caller:" + caller
			}
			key := id + ":" + r.URL.Path

			allowed, b := store.allow(key, limit, window)
			remaining := limit - b.count
			if remaining < 0 {
				remaining = 0
			}
			retryAfter := int(time.Until(b.resetTime).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			w.Header().Set("RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("RateLimit-Reset", fmt.Sprintf("%d", b.resetTime.Unix()))

			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				log.Warn().Str("rate_limit_id", id).Str("endpoint", r.URL.Path).
					Int("limit", limit).Int("window_secs", windowSecs).
					Msg("rate limit exceeded")
				RespondError(w, http.StatusTooManyRequests, fmt.Sprintf(
					"rate limit exceeded: %d requests per %ds, retry in %ds", limit, windowSecs, retryAfter))
				return
			}

			next(w, r)
		}
	}
}
