package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/store"
)

var (
	ErrSSORequestNotFound = errors.New("sso request not found")
	ErrSSORequestExpired  = errors.New("sso request expired")
)

// SSOResult is the outcome of a completed handshake. Token is always set;
// EncryptedToken carries the AES-GCM ciphertext for CLI handshakes and
// CallbackAssertion the signed JWT for web ones.
type SSOResult struct {
	Token             *model.Token
	EncryptedToken    string
	CallbackAssertion string
}

// InitiateSSORequest records the start of an SSO handshake and returns the
// pending request. CLI handshakes get a fresh 256-bit response key so the
// identity provider response can be encrypted for the waiting process; web
// handshakes rely on the signed callback instead and carry no key.
func (s *AuthService) InitiateSSORequest(ctx context.Context, requestType model.SSORequestType) (*model.SSORequest, error) {
	req, err := model.NewSSORequest(uuid.NewString(), time.Now().UTC().Add(s.cfg.SSOTTL), requestType)
	if err != nil {
		return nil, err
	}

	if requestType == model.SSORequestTypeCLI {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate sso key: %w", err)
		}
		req.Key = base64.StdEncoding.EncodeToString(key)
	}

	if err := s.store.CreateSSORequest(ctx, req); err != nil {
		return nil, fmt.Errorf("store sso request: %w", err)
	}
	return req, nil
}

// CompleteSSORequest finishes the handshake for the identity-provider
// verified user. The pending request is consumed whether or not completion
// succeeds past the lookup, so a request id can only ever be used once.
func (s *AuthService) CompleteSSORequest(ctx context.Context, requestID, user string) (*SSOResult, error) {
	req, err := s.store.GetSSORequestByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSSORequestNotFound
		}
		return nil, err
	}

	// Single use.
	if err := s.store.DeleteSSORequest(ctx, requestID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("consume sso request: %w", err)
	}

	if req.IsExpired() {
		return nil, ErrSSORequestExpired
	}

	token, err := s.IssueToken(ctx, user, 0, map[string]any{
		"issued_via":     "sso",
		"sso_request_id": requestID,
	})
	if err != nil {
		return nil, err
	}

	result := &SSOResult{Token: token}
	switch req.Type {
	case model.SSORequestTypeCLI:
		ciphertext, err := encryptWithRequestKey(req.Key, token.Token)
		if err != nil {
			return nil, err
		}
		result.EncryptedToken = ciphertext
	case model.SSORequestTypeWeb:
		assertion, err := s.signCallbackAssertion(user, requestID, token.Expiry)
		if err != nil {
			return nil, err
		}
		result.CallbackAssertion = assertion
	}
	return result, nil
}

// encryptWithRequestKey seals the token value with AES-256-GCM under the
// request's base64 key. Output is base64(nonce || ciphertext).
func encryptWithRequestKey(encodedKey, plaintext string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", fmt.Errorf("decode sso key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSSOResponse opens a ciphertext produced by encryptWithRequestKey.
// Used by the CLI side of the handshake.
func DecryptSSOResponse(encodedKey, encodedCiphertext string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", fmt.Errorf("decode sso key: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(encodedCiphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plaintext), nil
}

type callbackClaims struct {
	User      string `json:"user"`
	RequestID string `json:"request_id"`
	jwt.RegisteredClaims
}

// signCallbackAssertion mints the short-lived JWT a web client presents at
// the callback endpoint to prove the handshake completed.
func (s *AuthService) signCallbackAssertion(user, requestID string, expiry time.Time) (string, error) {
	now := time.Now()
	claims := callbackClaims{
		User:      user,
		RequestID: requestID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			Issuer:    s.cfg.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// VerifyCallbackAssertion validates a callback JWT and returns the user and
// request id it attests to.
func (s *AuthService) VerifyCallbackAssertion(assertion string) (user, requestID string, err error) {
	claims := &callbackClaims{}
	token, err := jwt.ParseWithClaims(assertion, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidCredentials
	}
	return claims.User, claims.RequestID, nil
}
