package model

import "time"

// Token is a short-lived bearer credential bound to a user by name. The
// token value is globally unique. Tokens are immutable after issuance; their
// lifecycle ends by explicit revocation or by expiry-driven garbage
// collection. Within this package tokens are internal-trust objects: callers
// presenting one externally decide which fields to reveal.
type Token struct {
	Base
	User     string         `json:"user" db:"user"`
	Token    string         `json:"token" db:"token"`
	Expiry   time.Time      `json:"expiry" db:"expiry"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Service  bool           `json:"service" db:"service"`
}

// NewToken validates the required fields and returns the record. The expiry
// is normalized to UTC.
func NewToken(user, token string, expiry time.Time) (*Token, error) {
	if user == "" {
		return nil, missingField("user")
	}
	if token == "" {
		return nil, missingField("token")
	}
	if expiry.IsZero() {
		return nil, missingField("expiry")
	}
	return &Token{User: user, Token: token, Expiry: expiry.UTC()}, nil
}

// IsExpired reports whether the token is expired right now. Pure function of
// the expiry and the clock; performs no I/O.
func (t *Token) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the token is expired at the given instant. The
// boundary instant itself counts as expired.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return ExpiredAt(t.Expiry, now)
}

// Export returns the serialized representation of the token.
func (t *Token) Export() Export {
	export := Export{
		"id":      t.ID,
		"user":    t.User,
		"token":   t.Token,
		"expiry":  t.Expiry,
		"service": t.Service,
	}
	if t.Metadata != nil {
		export["metadata"] = copyValue(t.Metadata)
	}
	return export
}
