package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Defaults for the voice webhook: a phone platform retries aggressively, so
// the budget is per-minute with enough burst for a conversational exchange.
const (
	DefaultCallsPerMinute = 120
	DefaultCallBurst      = 30
)

// CallThrottle limits inbound webhook traffic per caller IP with a token
// bucket refilled at a per-minute rate.
type CallThrottle struct {
	mu      sync.Mutex
	callers map[string]*callBucket

	perMinute float64
	burst     float64
	now       func() time.Time
}

type callBucket struct {
	tokens float64
	seen   time.Time
}

// NewCallThrottle creates a throttle allowing perMinute requests per caller
// with the given burst. Non-positive arguments fall back to the defaults.
func NewCallThrottle(perMinute, burst int) *CallThrottle {
	if perMinute <= 0 {
		perMinute = DefaultCallsPerMinute
	}
	if burst <= 0 {
		burst = DefaultCallBurst
	}
	t := &CallThrottle{
		callers:   make(map[string]*callBucket),
		perMinute: float64(perMinute),
		burst:     float64(burst),
		now:       time.Now,
	}
	go t.evictStale()
	return t
}

// Allow reports whether the caller is within budget and spends one token if
// so.
func (t *CallThrottle) Allow(caller string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.callers[caller]
	if !ok {
		b = &callBucket{tokens: t.burst, seen: now}
		t.callers[caller] = b
	}

	b.tokens += now.Sub(b.seen).Minutes() * t.perMinute
	if b.tokens > t.burst {
		b.tokens = t.burst
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evictStale drops callers idle long enough to have a full bucket again.
func (t *CallThrottle) evictStale() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		cutoff := t.now().Add(-10 * time.Minute)
		for caller, b := range t.callers {
			if b.seen.Before(cutoff) {
				delete(t.callers, caller)
			}
		}
		t.mu.Unlock()
	}
}

// RateLimit rejects callers over budget with 429 and the TRY_AGAIN error
// envelope, so the voice platform backs off instead of treating the reply
// as conversational.
func RateLimit(perMinute, burst int) func(http.Handler) http.Handler {
	throttle := NewCallThrottle(perMinute, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				caller = xri
			}
			if !throttle.Allow(caller) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    "TRY_AGAIN",
					"message": "too many requests, slow down",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
