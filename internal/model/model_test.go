package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewUserValidation(t *testing.T) {
	u, err := NewUser("alice")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if u.Name != "alice" {
		t.Errorf("got name %q, want %q", u.Name, "alice")
	}
	if u.IsService {
		t.Error("expected IsService to default to false")
	}

	_, err = NewUser("")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "name" {
		t.Errorf("got field %q, want %q", verr.Field, "name")
	}
}

// stubResolver returns a fixed local set, appending a remote set when asked.
type stubResolver struct {
	local  []Role
	remote []Role
	err    error
}

func (s *stubResolver) GetRolesForUser(ctx context.Context, user string, includeRemote bool) ([]Role, error) {
	if s.err != nil {
		return nil, s.err
	}
	roles := append([]Role{}, s.local...)
	if includeRemote {
		roles = append(roles, s.remote...)
	}
	return roles, nil
}

func TestUserGetRoles(t *testing.T) {
	u, _ := NewUser("alice")
	resolver := &stubResolver{
		local:  []Role{{Name: "observer"}, {Name: "operator"}},
		remote: []Role{{Name: "ldap_admin"}},
	}
	u.AttachRoleResolver(resolver)

	local, err := u.GetRoles(context.Background(), false)
	if err != nil {
		t.Fatalf("GetRoles(false): %v", err)
	}
	want := []string{"observer", "operator"}
	if len(local) != len(want) {
		t.Fatalf("got %d roles, want %d", len(local), len(want))
	}
	for i, r := range local {
		if r.Name != want[i] {
			t.Errorf("role %d: got %q, want %q", i, r.Name, want[i])
		}
	}

	all, err := u.GetRoles(context.Background(), true)
	if err != nil {
		t.Fatalf("GetRoles(true): %v", err)
	}
	wantAll := []string{"observer", "operator", "ldap_admin"}
	if len(all) != len(wantAll) {
		t.Fatalf("got %d roles, want %d", len(all), len(wantAll))
	}
	for i, r := range all {
		if r.Name != wantAll[i] {
			t.Errorf("role %d: got %q, want %q", i, r.Name, wantAll[i])
		}
	}
}

func TestUserGetRolesNoResolver(t *testing.T) {
	u, _ := NewUser("alice")
	if _, err := u.GetRoles(context.Background(), true); !errors.Is(err, ErrNoRoleResolver) {
		t.Fatalf("expected ErrNoRoleResolver, got %v", err)
	}
}

func TestUserGetRolesPropagatesBackendError(t *testing.T) {
	u, _ := NewUser("ghost")
	backendErr := errors.New("user not found in backend")
	u.AttachRoleResolver(&stubResolver{err: backendErr})

	_, err := u.GetRoles(context.Background(), true)
	if !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error to propagate unchanged, got %v", err)
	}
}

func TestUserGetPermissionAssignmentsReserved(t *testing.T) {
	u, _ := NewUser("alice")
	if _, err := u.GetPermissionAssignments(); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestNewTokenValidation(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	tok, err := NewToken("alice", "abc123", expiry)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if tok.Expiry.Location() != time.UTC {
		t.Error("expected expiry normalized to UTC")
	}

	cases := []struct {
		name   string
		user   string
		token  string
		expiry time.Time
		field  string
	}{
		{"missing user", "", "abc", expiry, "user"},
		{"missing token", "alice", "", expiry, "token"},
		{"missing expiry", "alice", "abc", time.Time{}, "expiry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewToken(tc.user, tc.token, tc.expiry)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("got field %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now().UTC()

	future, _ := NewToken("alice", "t1", now.Add(time.Minute))
	if future.IsExpiredAt(now) {
		t.Error("token with future expiry should not be expired")
	}

	past, _ := NewToken("alice", "t2", now.Add(-time.Minute))
	if !past.IsExpiredAt(now) {
		t.Error("token with past expiry should be expired")
	}

	// The boundary instant counts as expired.
	boundary, _ := NewToken("alice", "t3", now)
	if !boundary.IsExpiredAt(now) {
		t.Error("token expiring exactly now should be expired")
	}
}

func TestNewAPIKeyDefaults(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Microsecond)
	k, err := NewAPIKey("alice", "h1")
	if err != nil {
		t.Fatalf("NewAPIKey: %v", err)
	}
	after := time.Now().UTC()

	if !k.Enabled {
		t.Error("expected Enabled to default to true")
	}
	if k.CreatedAt.Before(before) || k.CreatedAt.After(after) {
		t.Errorf("CreatedAt %v outside construction window [%v, %v]", k.CreatedAt, before, after)
	}
	if k.CreatedAt.Location() != time.UTC {
		t.Error("expected CreatedAt in UTC")
	}
	// Microsecond precision survives a round trip through the stored form.
	if !k.CreatedAt.Equal(k.CreatedAt.Truncate(time.Microsecond)) {
		t.Error("expected CreatedAt truncated to microsecond precision")
	}
	if k.UID != "api_key:h1" {
		t.Errorf("got uid %q, want %q", k.UID, "api_key:h1")
	}
}

func TestNewAPIKeyValidation(t *testing.T) {
	if _, err := NewAPIKey("", "h1"); err == nil {
		t.Error("expected error for missing user")
	}
	if _, err := NewAPIKey("alice", ""); err == nil {
		t.Error("expected error for missing key_hash")
	}
}

func TestAPIKeyUIDDeterminism(t *testing.T) {
	a, _ := NewAPIKey("alice", "samehash")
	b, _ := NewAPIKey("bob", "samehash")
	if a.UID != b.UID {
		t.Errorf("same key_hash must derive the same uid: %q vs %q", a.UID, b.UID)
	}

	c, _ := NewAPIKey("alice", "otherhash")
	if a.UID == c.UID {
		t.Errorf("different key_hash must derive different uids, both got %q", a.UID)
	}
}

func TestAPIKeyMaskSecrets(t *testing.T) {
	k, _ := NewAPIKey("alice", "deadbeefcafe")
	k.ID = 7
	k.Metadata = map[string]any{"used_by": "ci", "tags": []any{"prod"}}

	export := k.Export()
	masked := k.MaskSecrets(export)

	if masked["key_hash"] != MaskedAttributeValue {
		t.Errorf("key_hash: got %v, want sentinel", masked["key_hash"])
	}
	if masked["uid"] != MaskedAttributeValue {
		t.Errorf("uid: got %v, want sentinel", masked["uid"])
	}

	// The literal hash must not appear anywhere in the masked output.
	if s := fmt.Sprintf("%v", masked); strings.Contains(s, "deadbeefcafe") {
		t.Errorf("masked export leaks the key hash: %s", s)
	}

	// All other fields are preserved.
	if masked["user"] != "alice" {
		t.Errorf("user: got %v, want alice", masked["user"])
	}
	if masked["id"] != int64(7) {
		t.Errorf("id: got %v, want 7", masked["id"])
	}
	if masked["enabled"] != true {
		t.Errorf("enabled: got %v, want true", masked["enabled"])
	}
	if !masked["created_at"].(time.Time).Equal(k.CreatedAt) {
		t.Errorf("created_at: got %v, want %v", masked["created_at"], k.CreatedAt)
	}

	// The input export is untouched.
	if export["key_hash"] != "deadbeefcafe" {
		t.Errorf("MaskSecrets mutated its input: key_hash = %v", export["key_hash"])
	}
	if export["uid"] != "api_key:deadbeefcafe" {
		t.Errorf("MaskSecrets mutated its input: uid = %v", export["uid"])
	}
}

func TestMaskSecretsDeepCopies(t *testing.T) {
	k, _ := NewAPIKey("alice", "h1")
	k.Metadata = map[string]any{"nested": map[string]any{"a": "b"}}

	export := k.Export()
	masked := k.MaskSecrets(export)

	// Mutating nested structures in the masked copy must not reach the
	// original export.
	masked["metadata"].(map[string]any)["nested"].(map[string]any)["a"] = "changed"
	if got := export["metadata"].(map[string]any)["nested"].(map[string]any)["a"]; got != "b" {
		t.Errorf("masked copy aliases the input: got %v, want b", got)
	}
}

func TestTokenMaskSecretsIsIdentity(t *testing.T) {
	tok, _ := NewToken("alice", "secret-token", time.Now().Add(time.Hour))
	export := tok.Export()
	masked := tok.MaskSecrets(export)

	// Tokens are internal-trust objects: nothing is masked by default.
	if masked["token"] != "secret-token" {
		t.Errorf("token: got %v, want unmasked value", masked["token"])
	}
	// But the result is still an independent copy.
	masked["token"] = "tampered"
	if export["token"] != "secret-token" {
		t.Error("MaskSecrets result aliases the input export")
	}
}

func TestNewSSORequestValidation(t *testing.T) {
	expiry := time.Now().Add(5 * time.Minute)

	r, err := NewSSORequest("req-1", expiry, SSORequestTypeCLI)
	if err != nil {
		t.Fatalf("NewSSORequest: %v", err)
	}
	if r.Type != SSORequestTypeCLI {
		t.Errorf("got type %q, want cli", r.Type)
	}

	if _, err := NewSSORequest("", expiry, SSORequestTypeWeb); err == nil {
		t.Error("expected error for missing request_id")
	}
	if _, err := NewSSORequest("req-2", time.Time{}, SSORequestTypeWeb); err == nil {
		t.Error("expected error for missing expiry")
	}

	_, err = NewSSORequest("req-3", expiry, SSORequestType("saml"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown type, got %v", err)
	}
	if verr.Field != "type" {
		t.Errorf("got field %q, want type", verr.Field)
	}
}

// Known gap: the record does not cross-check Key against Type. A web request
// carrying a key (and a CLI request without one) is accepted as-is; enforcing
// the pairing is the issuing caller's job.
func TestSSORequestKeyTypeLooseness(t *testing.T) {
	expiry := time.Now().Add(5 * time.Minute)

	web, err := NewSSORequest("req-web", expiry, SSORequestTypeWeb)
	if err != nil {
		t.Fatalf("NewSSORequest(web): %v", err)
	}
	web.Key = "unexpected-key-material"
	if web.Export()["key"] != "unexpected-key-material" {
		t.Error("web request with key should round-trip unchanged")
	}

	cli, err := NewSSORequest("req-cli", expiry, SSORequestTypeCLI)
	if err != nil {
		t.Fatalf("NewSSORequest(cli): %v", err)
	}
	if cli.Key != "" {
		t.Error("cli request without key should be accepted with empty key")
	}
}

func TestSSORequestExpiry(t *testing.T) {
	now := time.Now().UTC()

	r, _ := NewSSORequest("req-1", now.Add(time.Minute), SSORequestTypeWeb)
	if r.IsExpiredAt(now) {
		t.Error("request with future expiry should not be expired")
	}
	if !r.IsExpiredAt(now.Add(time.Minute)) {
		t.Error("request at its expiry instant should be expired")
	}
	if !r.IsExpiredAt(now.Add(2 * time.Minute)) {
		t.Error("request past its expiry should be expired")
	}
}

func TestDeriveUID(t *testing.T) {
	if got := DeriveUID("api_key", "abc"); got != "api_key:abc" {
		t.Errorf("got %q, want api_key:abc", got)
	}
	if got := DeriveUID("action", "pack", "name"); got != "action:pack:name" {
		t.Errorf("got %q, want action:pack:name", got)
	}
}
