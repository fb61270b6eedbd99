package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pimguilherme/st2/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

const principalSlotKey contextKeyAuth = "auth_principal_slot"

// Principal represents the authenticated identity making the request.
type Principal struct {
	Type string // "token" or "api_key"
	User string
}

// principalSlot lets the access log see who authenticated. Logger installs
// an empty slot before the auth middleware runs; Authenticate fills it in.
// Context values only flow inward, so the pointer is the way back out.
type principalSlot struct {
	p *Principal
}

// Authenticate returns an HTTP middleware that validates the request's
// credentials. It supports two methods:
//
//  1. Bearer token via the configured token header (default X-Auth-Token)
//  2. API key via the configured key header (default St2-Api-Key)
//
// On success, a Principal is attached to the request context. On failure,
// a 401 JSON error response is returned.
func Authenticate(authSvc *service.AuthService, tokenHeader, apiKeyHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *Principal

			if value := r.Header.Get(tokenHeader); value != "" {
				token, err := authSvc.ValidateToken(r.Context(), value)
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, "Invalid or expired token")
					return
				}
				principal = &Principal{Type: "token", User: token.User}
			}

			if principal == nil {
				if rawKey := r.Header.Get(apiKeyHeader); rawKey != "" {
					key, err := authSvc.ValidateAPIKey(r.Context(), rawKey)
					if err != nil {
						writeAuthError(w, http.StatusUnauthorized, "Invalid API key")
						return
					}
					principal = &Principal{Type: "api_key", User: key.User}
				}
			}

			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide "+tokenHeader+" or "+apiKeyHeader+" header.")
				return
			}

			if slot, ok := r.Context().Value(principalSlotKey).(*principalSlot); ok {
				slot.p = principal
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid import cycle with handler package
	w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":"` + message + `"}}`))
}
