// Package service implements the credential lifecycle on top of the system
// store: token issuance and validation, API key management, and the SSO
// handshake flows.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrKeyRevoked         = errors.New("api key revoked")
)

// Config carries the tunables for the auth service.
type Config struct {
	// TokenTTL is the default lifetime for issued tokens.
	TokenTTL time.Duration
	// MaxTokenTTL caps caller-requested lifetimes. Zero means no cap.
	MaxTokenTTL time.Duration
	// SSOTTL bounds how long an SSO handshake may stay pending.
	SSOTTL time.Duration
	// JWTSecret signs web SSO callback assertions.
	JWTSecret string
	// Issuer names this deployment in callback assertions.
	Issuer string
}

// AuthService issues and validates the credentials stored in the system
// store. All secret material leaves this package only through the records'
// MaskSecrets exports, except the single raw-key return of CreateAPIKey.
type AuthService struct {
	store    *store.Store
	resolver model.RoleResolver
	cfg      Config
}

// NewAuthService wires the service to its store and role resolver.
func NewAuthService(st *store.Store, resolver model.RoleResolver, cfg Config) *AuthService {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.SSOTTL == 0 {
		cfg.SSOTTL = 2 * time.Minute
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "st2auth"
	}
	return &AuthService{store: st, resolver: resolver, cfg: cfg}
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIKey maps a raw API key to the hash the store addresses it by.
func HashAPIKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// EnsureUser returns the named user, creating the record on first sight.
// Authentication itself happens upstream (PAM, SSO, reverse proxy); by the
// time a name reaches this service it is trusted.
func (s *AuthService) EnsureUser(ctx context.Context, name string) (*model.User, error) {
	user, err := s.store.GetUserByName(ctx, name)
	if err == nil {
		user.AttachRoleResolver(s.resolver)
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	user, err = model.NewUser(name)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// Lost a create race; the row exists now.
		var uerr *store.UniquenessError
		if errors.As(err, &uerr) {
			return s.EnsureUser(ctx, name)
		}
		return nil, err
	}
	user.AttachRoleResolver(s.resolver)
	return user, nil
}

// GetUser returns the named user with the role resolver attached.
func (s *AuthService) GetUser(ctx context.Context, name string) (*model.User, error) {
	user, err := s.store.GetUserByName(ctx, name)
	if err != nil {
		return nil, err
	}
	user.AttachRoleResolver(s.resolver)
	return user, nil
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// IssueToken mints a bearer token for the named user. ttl of zero uses the
// configured default; requests beyond MaxTokenTTL are clamped to it. The
// user record is created on first issuance.
func (s *AuthService) IssueToken(ctx context.Context, user string, ttl time.Duration, metadata map[string]any) (*model.Token, error) {
	if _, err := s.EnsureUser(ctx, user); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	if ttl <= 0 {
		ttl = s.cfg.TokenTTL
	}
	if s.cfg.MaxTokenTTL > 0 && ttl > s.cfg.MaxTokenTTL {
		ttl = s.cfg.MaxTokenTTL
	}

	value, err := randomHex(32)
	if err != nil {
		return nil, err
	}

	token, err := model.NewToken(user, value, time.Now().UTC().Add(ttl))
	if err != nil {
		return nil, err
	}
	token.Metadata = metadata

	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// ValidateToken resolves a presented token value. Unknown values come back
// as ErrInvalidCredentials and expired ones as ErrTokenExpired; the instant
// of expiry itself counts as expired.
func (s *AuthService) ValidateToken(ctx context.Context, value string) (*model.Token, error) {
	token, err := s.store.GetTokenByValue(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if token.IsExpired() {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// RevokeToken deletes a token before its natural expiry.
func (s *AuthService) RevokeToken(ctx context.Context, value string) error {
	return s.store.DeleteToken(ctx, value)
}

// ListTokens returns the tokens issued to a user.
func (s *AuthService) ListTokens(ctx context.Context, user string) ([]*model.Token, error) {
	return s.store.ListTokensByUser(ctx, user)
}

// PurgeExpired garbage-collects expired tokens and stale SSO requests,
// returning the counts removed.
func (s *AuthService) PurgeExpired(ctx context.Context) (tokens, ssoRequests int64, err error) {
	now := time.Now()
	tokens, err = s.store.PurgeExpiredTokens(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	ssoRequests, err = s.store.PurgeExpiredSSORequests(ctx, now)
	if err != nil {
		return tokens, 0, err
	}
	return tokens, ssoRequests, nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// CreateAPIKey mints a new API key for the named user and returns the raw
// secret alongside the stored record. The raw key is shown exactly once:
// only its SHA-256 hash is persisted, and the returned record masks the
// hash on export.
func (s *AuthService) CreateAPIKey(ctx context.Context, user string, metadata map[string]any) (string, *model.APIKey, error) {
	if _, err := s.EnsureUser(ctx, user); err != nil {
		return "", nil, fmt.Errorf("ensure user: %w", err)
	}

	rawKey, err := randomHex(32)
	if err != nil {
		return "", nil, err
	}

	key, err := model.NewAPIKey(user, HashAPIKey(rawKey))
	if err != nil {
		return "", nil, err
	}
	key.Metadata = metadata

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("store api key: %w", err)
	}
	return rawKey, key, nil
}

// ImportAPIKey stores a key whose raw secret was generated elsewhere.
func (s *AuthService) ImportAPIKey(ctx context.Context, user, rawKey string, metadata map[string]any) (*model.APIKey, error) {
	if rawKey == "" {
		return nil, ErrInvalidCredentials
	}
	if _, err := s.EnsureUser(ctx, user); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	key, err := model.NewAPIKey(user, HashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}
	key.Metadata = metadata

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("store api key: %w", err)
	}
	return key, nil
}

// ValidateAPIKey checks a presented raw key against the stored hashes.
// Disabled keys are rejected with ErrKeyRevoked.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*model.APIKey, error) {
	key, err := s.store.GetAPIKeyByHash(ctx, HashAPIKey(rawKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !key.Enabled {
		return nil, ErrKeyRevoked
	}
	return key, nil
}

// ListAPIKeys lists keys, optionally scoped to a single user.
func (s *AuthService) ListAPIKeys(ctx context.Context, user string) ([]*model.APIKey, error) {
	if user == "" {
		return s.store.ListAPIKeys(ctx)
	}
	return s.store.ListAPIKeysByUser(ctx, user)
}

// SetAPIKeyEnabled revokes or reinstates a key by record id.
func (s *AuthService) SetAPIKeyEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.store.SetAPIKeyEnabled(ctx, id, enabled)
}

// DeleteAPIKey removes a key record entirely.
func (s *AuthService) DeleteAPIKey(ctx context.Context, id int64) error {
	return s.store.DeleteAPIKey(ctx, id)
}
