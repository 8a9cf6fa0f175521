package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/notekeeper/internal/model"
)

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	return req
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{GeneralRate: 2, GeneralBurst: 5, WriteRate: 1, WriteBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler)

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{GeneralRate: 0.5, GeneralBurst: 1, WriteRate: 1, WriteBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-rate-limit"))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-rate-limit"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter != 2 {
		t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
	}
	body := decodeBody(t, w)
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestRateLimitMiddleware_PerUserIsolation(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{GeneralRate: 0.01, GeneralBurst: 1, WriteRate: 1, WriteBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler)

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-a"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-b"))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_WriteIndependentOfGeneral(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{GeneralRate: 100, GeneralBurst: 100, WriteRate: 0.01, WriteBurst: 1})
	handler := rl.GeneralMiddleware()(rl.WriteMiddleware()(okHandler))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("writer"))
	if w.Code != http.StatusOK {
		t.Fatalf("first write: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("writer"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second write: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if rl.WriteLimiterCount() != 1 {
		t.Errorf("WriteLimiterCount = %d, want 1", rl.WriteLimiterCount())
	}
}

func TestRateLimitMiddleware_RequiresUser(t *testing.T) {
	rl := newTestLimiter(t, DefaultRateLimiterConfig())

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler).ServeHTTP(w, requestAs(""))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1, WriteRate: 1, WriteBurst: 1,
		CleanupInterval: time.Hour,
	})

	rl.general.get("idle", time.Now().Add(-3*time.Hour))
	rl.general.get("active", time.Now())
	rl.write.get("idle", time.Now().Add(-3*time.Hour))

	rl.cleanup(time.Now())

	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", rl.GeneralLimiterCount())
	}
	if rl.WriteLimiterCount() != 0 {
		t.Errorf("WriteLimiterCount = %d, want 0", rl.WriteLimiterCount())
	}
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(120, 30)
	if cfg.GeneralRate != 2 || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.WriteRate != 0.5 || cfg.WriteBurst != 30 {
		t.Errorf("write = %v/%d, want 0.5/30", cfg.WriteRate, cfg.WriteBurst)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}
