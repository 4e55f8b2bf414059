package http_test

import (
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	msghubhttp "msghub/internal/handler/http"
	"msghub/pkg/ratelimit"
)

func okHandler() nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
	})
}

func TestIPRateLimitThrottlesPerIP(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.0001, 2, time.Minute)
	defer limiter.Stop()
	handler := msghubhttp.IPRateLimit(limiter)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(nethttp.MethodGet, "/messages", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	want := []int{200, 200, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}

	// A different client IP has its own bucket.
	req := httptest.NewRequest(nethttp.MethodGet, "/messages", nil)
	req.RemoteAddr = "10.0.0.2:54321"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != nethttp.StatusOK {
		t.Errorf("second client status = %d, want 200", rr.Code)
	}
}

func TestIPRateLimitUsesForwardedFor(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.0001, 1, time.Minute)
	defer limiter.Stop()
	handler := msghubhttp.IPRateLimit(limiter)(okHandler())

	for i, want := range []int{200, 429} {
		req := httptest.NewRequest(nethttp.MethodGet, "/messages", nil)
		req.RemoteAddr = "127.0.0.1:1"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("request %d status = %d, want %d", i, rr.Code, want)
		}
	}
}

func TestRecoverAnswers500OnPanic(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	handler := msghubhttp.Recover(logger)(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(nethttp.MethodGet, "/", nil))

	if rr.Code != nethttp.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestHealthUnhealthyWithoutDependencies(t *testing.T) {
	handler := &msghubhttp.HealthHandler{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))

	if rr.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestLiveHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	msghubhttp.LiveHandler{}.ServeHTTP(rr, httptest.NewRequest(nethttp.MethodGet, "/livez", nil))
	if rr.Code != nethttp.StatusOK || rr.Body.String() != "alive" {
		t.Fatalf("status = %d, body = %q", rr.Code, rr.Body.String())
	}
}
