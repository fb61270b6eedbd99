package model

import (
	"fmt"
	"time"
)

// SSORequestType enumerates the client channels an SSO handshake can target.
type SSORequestType string

const (
	SSORequestTypeCLI SSORequestType = "cli"
	SSORequestTypeWeb SSORequestType = "web"
)

// Valid reports whether t is one of the declared request types.
func (t SSORequestType) Valid() bool {
	return t == SSORequestTypeCLI || t == SSORequestTypeWeb
}

// SSORequest correlates an in-flight single-sign-on exchange with the client
// channel that started it. CLI requests carry symmetric key material used to
// encrypt the completed credential back to the client; web requests have no
// key. The request is short-lived: it is destroyed on completion and ignored
// once expired.
//
// RequestID uniqueness per in-flight handshake is the issuing caller's
// responsibility; the store does not enforce it.
type SSORequest struct {
	Base
	RequestID string         `json:"request_id" db:"request_id"`
	Key       string         `json:"key,omitempty" db:"key"`
	Expiry    time.Time      `json:"expiry" db:"expiry"`
	Type      SSORequestType `json:"type" db:"type"`
}

// NewSSORequest validates the required fields and the type enum. The key is
// optional at the record level even for CLI requests: supplying one is the
// issuing caller's job, and a web request carrying a key is accepted as-is.
func NewSSORequest(requestID string, expiry time.Time, typ SSORequestType) (*SSORequest, error) {
	if requestID == "" {
		return nil, missingField("request_id")
	}
	if expiry.IsZero() {
		return nil, missingField("expiry")
	}
	if !typ.Valid() {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown sso request type %q", typ)}
	}
	return &SSORequest{RequestID: requestID, Expiry: expiry.UTC(), Type: typ}, nil
}

// IsExpired reports whether the request is expired right now.
func (r *SSORequest) IsExpired() bool {
	return r.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the request is expired at the given instant.
// Semantics are identical to Token: the boundary counts as expired.
func (r *SSORequest) IsExpiredAt(now time.Time) bool {
	return ExpiredAt(r.Expiry, now)
}

// Export returns the serialized representation of the request.
func (r *SSORequest) Export() Export {
	export := Export{
		"id":         r.ID,
		"request_id": r.RequestID,
		"expiry":     r.Expiry,
		"type":       string(r.Type),
	}
	if r.Key != "" {
		export["key"] = r.Key
	}
	return export
}
