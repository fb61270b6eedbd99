package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pimguilherme/st2/internal/rbac"
	"github.com/pimguilherme/st2/internal/service"
	"github.com/pimguilherme/st2/internal/store"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientUUID(t *testing.T) {
	clientID := "0198f1a2-7b3c-7def-8a90-123456789abc"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDReplacesMalformedClientID(t *testing.T) {
	clientID := "not-a-uuid\nstatus=500"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == clientID {
		t.Error("malformed client request ID should be replaced")
	}
	if len(respID) != 36 {
		t.Errorf("expected a generated UUID, got %q", respID)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Logger middleware tests
// ---------------------------------------------------------------------------

func TestLoggerRecordsPrincipal(t *testing.T) {
	auth := newTestAuth(t)
	token, err := auth.IssueToken(context.Background(), "alice", 0, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logger(logger)(
		Authenticate(auth, "X-Auth-Token", "St2-Api-Key")(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Auth-Token", token.Token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	line := buf.String()
	if !strings.Contains(line, "user=alice") {
		t.Errorf("access log should name the principal, got %q", line)
	}
	if !strings.Contains(line, "auth=token") {
		t.Errorf("access log should record the credential type, got %q", line)
	}
}

func TestLoggerOmitsPrincipalWhenUnauthenticated(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if strings.Contains(buf.String(), "user=") {
		t.Errorf("anonymous request should not carry a user field, got %q", buf.String())
	}
}

// ---------------------------------------------------------------------------
// Authenticate middleware tests
// ---------------------------------------------------------------------------

func newTestAuth(t *testing.T) *service.AuthService {
	t.Helper()
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	resolver, err := rbac.Open("noop", st)
	if err != nil {
		t.Fatalf("open rbac backend: %v", err)
	}
	return service.NewAuthService(st, resolver, service.Config{TokenTTL: time.Hour})
}

func okHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r.Context())
		if p == nil {
			t.Error("expected principal in context")
		} else if p.User != wantUser {
			t.Errorf("principal user: got %q, want %q", p.User, wantUser)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateWithToken(t *testing.T) {
	auth := newTestAuth(t)
	token, err := auth.IssueToken(context.Background(), "alice", 0, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	handler := Authenticate(auth, "X-Auth-Token", "St2-Api-Key")(okHandler(t, "alice"))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Auth-Token", token.Token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestAuthenticateWithAPIKey(t *testing.T) {
	auth := newTestAuth(t)
	rawKey, _, err := auth.CreateAPIKey(context.Background(), "bob", nil)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	handler := Authenticate(auth, "X-Auth-Token", "St2-Api-Key")(okHandler(t, "bob"))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("St2-Api-Key", rawKey)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestAuthenticateRejectsMissingCredentials(t *testing.T) {
	auth := newTestAuth(t)
	handler := Authenticate(auth, "X-Auth-Token", "St2-Api-Key")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("inner handler should not be called without credentials")
		}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	auth := newTestAuth(t)
	handler := Authenticate(auth, "X-Auth-Token", "St2-Api-Key")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("inner handler should not be called with a bad token")
		}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Auth-Token", "never-issued")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// RateLimitByHeader middleware tests
// ---------------------------------------------------------------------------

func TestRateLimitByHeaderLimitsPerKey(t *testing.T) {
	handler := RateLimitByHeader("St2-Api-Key", 2)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	send := func(key string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		if key != "" {
			req.Header.Set("St2-Api-Key", key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("key-a"); code != http.StatusOK {
			t.Fatalf("request %d with key-a: expected 200, got %d", i+1, code)
		}
	}
	if code := send("key-a"); code != http.StatusTooManyRequests {
		t.Errorf("third request with key-a: expected 429, got %d", code)
	}

	// A different key has its own budget.
	if code := send("key-b"); code != http.StatusOK {
		t.Errorf("request with key-b: expected 200, got %d", code)
	}
}

func TestRateLimitByHeaderIgnoresHeaderlessRequests(t *testing.T) {
	handler := RateLimitByHeader("St2-Api-Key", 1)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("headerless request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// GetPrincipal tests
// ---------------------------------------------------------------------------

func TestGetPrincipalWithValue(t *testing.T) {
	expected := &Principal{Type: "token", User: "alice"}
	ctx := context.WithValue(context.Background(), AuthPrincipalKey, expected)

	got := GetPrincipal(ctx)
	if got == nil {
		t.Fatal("expected non-nil principal")
	}
	if got.User != "alice" {
		t.Errorf("expected user alice, got %q", got.User)
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	got := GetPrincipal(context.Background())
	if got != nil {
		t.Error("expected nil principal from bare context")
	}
}
