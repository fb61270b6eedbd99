package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/rbac"
	"github.com/pimguilherme/st2/internal/store"
)

func newTestAuth(t *testing.T) (*AuthService, *store.Store) {
	t.Helper()
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	resolver, err := rbac.Open("store", st)
	if err != nil {
		t.Fatalf("open rbac backend: %v", err)
	}

	auth := NewAuthService(st, resolver, Config{
		TokenTTL:  time.Hour,
		SSOTTL:    time.Minute,
		JWTSecret: "test-secret-key-for-jwt",
	})
	return auth, st
}

func TestTokenRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueToken(ctx, "alice", 0, map[string]any{"issued_by": "test"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if token.Token == "" {
		t.Fatal("expected non-empty token value")
	}
	if len(token.Token) != 64 {
		t.Errorf("token value length %d, want 64 hex chars", len(token.Token))
	}
	if token.ID == 0 {
		t.Error("expected stored token to carry a surrogate id")
	}

	got, err := auth.ValidateToken(ctx, token.Token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got.User != "alice" {
		t.Errorf("got user %q, want alice", got.User)
	}
	if got.Metadata["issued_by"] != "test" {
		t.Errorf("got metadata %v, want issued_by=test", got.Metadata)
	}
}

func TestIssueTokenCreatesUser(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.IssueToken(ctx, "fresh", 0, nil); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := st.GetUserByName(ctx, "fresh"); err != nil {
		t.Errorf("expected user record after first issuance: %v", err)
	}
}

func TestIssueTokenClampsTTL(t *testing.T) {
	auth, _ := newTestAuth(t)
	auth.cfg.MaxTokenTTL = time.Hour
	ctx := context.Background()

	token, err := auth.IssueToken(ctx, "alice", 100*time.Hour, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if until := time.Until(token.Expiry); until > time.Hour+time.Minute {
		t.Errorf("expiry %v exceeds the configured cap", until)
	}
}

func TestValidateTokenUnknown(t *testing.T) {
	auth, _ := newTestAuth(t)

	_, err := auth.ValidateToken(context.Background(), "no-such-token")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	expired, _ := model.NewToken("alice", "stale-token", time.Now().Add(-time.Minute))
	if err := st.CreateToken(ctx, expired); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	_, err := auth.ValidateToken(ctx, "stale-token")
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRevokeToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueToken(ctx, "alice", 0, nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := auth.RevokeToken(ctx, token.Token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := auth.ValidateToken(ctx, token.Token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials after revocation, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	stale, _ := model.NewToken("alice", "stale", time.Now().Add(-time.Hour))
	if err := st.CreateToken(ctx, stale); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	staleReq, _ := model.NewSSORequest("stale-req", time.Now().Add(-time.Hour), model.SSORequestTypeWeb)
	if err := st.CreateSSORequest(ctx, staleReq); err != nil {
		t.Fatalf("CreateSSORequest: %v", err)
	}
	if _, err := auth.IssueToken(ctx, "alice", time.Hour, nil); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tokens, ssoRequests, err := auth.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if tokens != 1 {
		t.Errorf("purged %d tokens, want 1", tokens)
	}
	if ssoRequests != 1 {
		t.Errorf("purged %d sso requests, want 1", ssoRequests)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	rawKey, key, err := auth.CreateAPIKey(ctx, "alice", map[string]any{"used_by": "ci"})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if rawKey == "" {
		t.Fatal("expected raw key to be returned once")
	}
	// Only the hash is persisted.
	if strings.Contains(key.KeyHash, rawKey) {
		t.Error("stored hash must not contain the raw key")
	}
	if key.KeyHash != HashAPIKey(rawKey) {
		t.Error("stored hash should be the SHA-256 of the raw key")
	}
	if key.UID != "api_key:"+key.KeyHash {
		t.Errorf("got uid %q, want api_key:<hash>", key.UID)
	}

	got, err := auth.ValidateAPIKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if got.User != "alice" {
		t.Errorf("got user %q, want alice", got.User)
	}

	// Revoked keys stop validating but keep their record.
	if err := auth.SetAPIKeyEnabled(ctx, key.ID, false); err != nil {
		t.Fatalf("SetAPIKeyEnabled: %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, rawKey); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
	keys, err := auth.ListAPIKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("got %d keys, want 1", len(keys))
	}

	if err := auth.DeleteAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, rawKey); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials after delete, got %v", err)
	}
}

func TestImportAPIKey(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	key, err := auth.ImportAPIKey(ctx, "alice", "externally-generated-secret", nil)
	if err != nil {
		t.Fatalf("ImportAPIKey: %v", err)
	}
	if key.KeyHash != HashAPIKey("externally-generated-secret") {
		t.Error("imported key should be addressed by the hash of the raw secret")
	}

	if _, err := auth.ValidateAPIKey(ctx, "externally-generated-secret"); err != nil {
		t.Errorf("ValidateAPIKey: %v", err)
	}

	if _, err := auth.ImportAPIKey(ctx, "alice", "", nil); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for empty raw key, got %v", err)
	}
}

func TestValidateAPIKeyUnknown(t *testing.T) {
	auth, _ := newTestAuth(t)

	_, err := auth.ValidateAPIKey(context.Background(), "never-issued")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestEnsureUserIdempotent(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	first, err := auth.EnsureUser(ctx, "alice")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	second, err := auth.EnsureUser(ctx, "alice")
	if err != nil {
		t.Fatalf("EnsureUser (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same record, got ids %d and %d", first.ID, second.ID)
	}

	// Resolver is attached: roles resolve without error for a known user.
	if _, err := second.GetRoles(ctx, false); err != nil {
		t.Errorf("GetRoles through ensured user: %v", err)
	}
}
