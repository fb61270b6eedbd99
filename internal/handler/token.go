package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pimguilherme/st2/internal/service"
)

// TokenHandler serves the token lifecycle endpoints. tokenHeader names the
// header Validate reads the presented token from, matching the auth
// middleware's configuration.
type TokenHandler struct {
	auth        *service.AuthService
	tokenHeader string
}

func NewTokenHandler(auth *service.AuthService, tokenHeader string) *TokenHandler {
	if tokenHeader == "" {
		tokenHeader = "X-Auth-Token"
	}
	return &TokenHandler{auth: auth, tokenHeader: tokenHeader}
}

type issueTokenRequest struct {
	User       string         `json:"user"`
	TTLSeconds int64          `json:"ttl"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Issue mints a new token for the named user. The caller was authenticated
// upstream (reverse proxy, PAM, SSO); the body names the identity.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	token, err := h.auth.IssueToken(r.Context(), req.User, time.Duration(req.TTLSeconds)*time.Second, req.Metadata)
	if err != nil {
		writeStoreError(w, err, "issue token")
		return
	}
	// The issuance response is the one place the token value is shown.
	writeJSON(w, http.StatusCreated, token.Export())
}

// Validate resolves the token presented in the configured token header (or
// the token query parameter) and returns its masked export.
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	value := r.Header.Get(h.tokenHeader)
	if value == "" {
		value = queryString(r, "token")
	}
	if value == "" {
		writeError(w, http.StatusBadRequest, "no token provided")
		return
	}

	token, err := h.auth.ValidateToken(r.Context(), value)
	if err != nil {
		writeStoreError(w, err, "validate token")
		return
	}
	writeJSON(w, http.StatusOK, maskedExport(token))
}

// Revoke deletes a token before its natural expiry.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "token")
	if err := h.auth.RevokeToken(r.Context(), value); err != nil {
		writeStoreError(w, err, "revoke token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns the masked tokens issued to a user.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	user := queryString(r, "user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	tokens, err := h.auth.ListTokens(r.Context(), user)
	if err != nil {
		writeStoreError(w, err, "list tokens")
		return
	}
	writeJSON(w, http.StatusOK, maskedList(tokens))
}

// Purge garbage-collects expired tokens and stale SSO requests.
func (h *TokenHandler) Purge(w http.ResponseWriter, r *http.Request) {
	tokens, ssoRequests, err := h.auth.PurgeExpired(r.Context())
	if err != nil {
		writeStoreError(w, err, "purge expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens_purged":       tokens,
		"sso_requests_purged": ssoRequests,
	})
}
