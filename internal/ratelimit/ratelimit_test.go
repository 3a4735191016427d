package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 3, CleanupInterval: time.Hour})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if l.Allow("client") {
		t.Error("request past burst should be denied")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Hour})
	defer l.Stop()

	if !l.Allow("a") {
		t.Fatal("first request for a should pass")
	}
	if l.Allow("a") {
		t.Error("second request for a should be denied")
	}
	if !l.Allow("b") {
		t.Error("key b has its own bucket")
	}
}

func TestAllow_Refill(t *testing.T) {
	// 600 rpm = 10 tokens/second, so a denied bucket recovers quickly.
	l := New(Config{RequestsPerMinute: 600, BurstSize: 1, CleanupInterval: time.Hour})
	defer l.Stop()

	if !l.Allow("client") {
		t.Fatal("first request should pass")
	}
	if l.Allow("client") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow("client") {
		t.Error("bucket should have refilled after waiting")
	}
}

func TestNew_ZeroConfigFallsBack(t *testing.T) {
	l := New(Config{})
	defer l.Stop()

	if l.cfg.RequestsPerMinute != 10 || l.cfg.BurstSize != 5 {
		t.Errorf("defaults not applied: %+v", l.cfg)
	}
}

func TestMiddleware_RejectsWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Hour})
	defer l.Stop()

	r := gin.New()
	r.POST("/run", l.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
	})

	do := func(actor string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/run", nil)
		if actor != "" {
			req.Header.Set("X-Actor", actor)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("analyst"); code != http.StatusAccepted {
		t.Fatalf("first request = %d, want 202", code)
	}
	if code := do("analyst"); code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", code)
	}
	// A different actor from the same IP has its own budget.
	if code := do("other"); code != http.StatusAccepted {
		t.Errorf("different actor = %d, want 202", code)
	}
}
