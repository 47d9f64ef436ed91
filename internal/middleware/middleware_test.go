package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if ok, remaining := rl.Allow("a"); !ok || remaining != 1 {
		t.Fatalf("Expected first request allowed with 1 remaining, got %v %d", ok, remaining)
	}
	if ok, _ := rl.Allow("a"); !ok {
		t.Fatal("Expected second request allowed")
	}
	if ok, _ := rl.Allow("a"); ok {
		t.Fatal("Expected third request to be limited")
	}
	if ok, _ := rl.Allow("b"); !ok {
		t.Fatal("Expected other client to be allowed")
	}

	now = now.Add(time.Minute)
	if ok, _ := rl.Allow("a"); !ok {
		t.Fatal("Expected tokens to refill after the window")
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("a")

	now = now.Add(2 * time.Hour)
	rl.evictIdle()
	if len(rl.clients) != 0 {
		t.Errorf("Expected idle client to be evicted, got %d", len(rl.clients))
	}
	rl.Stop()
}

func TestGetClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"customer", map[string]string{HeaderCustomerID: "c1", "X-Forwarded-For": "1.1.1.1"}, "10.0.0.1:1234", "customer:c1"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "10.0.0.1:1234", "ip:1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "10.0.0.1:1234", "ip:3.3.3.3"},
		{"remote addr", nil, "10.0.0.1:1234", "ip:10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientKey(req); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	h := RateLimitMiddleware(rl)(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("Expected limit header 1, got %s", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %s", rr.Header().Get("Retry-After"))
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/carts/x", nil)
	req.Header.Set(HeaderCustomerID, "c1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("Expected WARN level, got %v", entry["level"])
	}
	if entry["status"] != float64(http.StatusNotFound) {
		t.Errorf("Expected status 404, got %v", entry["status"])
	}
	if entry["customer_id"] != "c1" {
		t.Errorf("Expected customer_id c1, got %v", entry["customer_id"])
	}
}

func TestTracingMiddleware(t *testing.T) {
	h := TracingMiddleware("swift-coupons-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/carts", nil))
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
}
