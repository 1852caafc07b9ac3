package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/chorly/internal/auth"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, window)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow("key"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, wait := rl.Allow("key")
	if ok {
		t.Error("6th request should be denied")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want 1m", wait)
	}
	if ok, _ := rl.Allow("other"); !ok {
		t.Error("other keys have their own window")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl, clock := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		rl.Allow("key")
	}
	if ok, _ := rl.Allow("key"); ok {
		t.Error("should be blocked within window")
	}

	clock.t = clock.t.Add(time.Minute + time.Second)
	if ok, _ := rl.Allow("key"); !ok {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter(5, time.Minute)

	rl.Allow("expired")
	clock.t = clock.t.Add(2 * time.Minute)
	rl.Allow("active")

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["expired"]; ok {
		t.Error("expired entry should have been cleaned up")
	}
	if _, ok := rl.entries["active"]; !ok {
		t.Error("active entry should still exist")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(2, time.Minute)

	handler := RateLimit(rl, TenantKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(tenant string) *httptest.ResponseRecorder {
		ctx := auth.WithAuth(context.Background(), auth.AuthContext{TenantID: tenant})
		req := httptest.NewRequest("POST", "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("t1"); rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := send("t1")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
	if rec := send("t2"); rec.Code != http.StatusOK {
		t.Errorf("other tenant: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		xff, remote, want string
	}{
		{"", "10.0.0.1:5000", "10.0.0.1"},
		{"203.0.113.5", "10.0.0.1:5000", "203.0.113.5"},
		{"203.0.113.5, 10.0.0.2", "10.0.0.1:5000", "203.0.113.5"},
		{"", "bad-addr", "bad-addr"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := RealIP(req); got != tt.want {
			t.Errorf("RealIP(xff=%q, remote=%q) = %q, want %q", tt.xff, tt.remote, got, tt.want)
		}
	}
}
