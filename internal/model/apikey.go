package model

import "time"

// ResourceTypeAPIKey namespaces API key UIDs.
const ResourceTypeAPIKey = "api_key"

// APIKey is a long-lived credential addressed by the one-way hash of its
// secret. The raw secret never reaches this package: callers hash it first,
// and only the hash is stored or exported. Each key is scoped to a user and
// inherits that user's permissions.
type APIKey struct {
	Base
	User      string         `json:"user" db:"user"`
	KeyHash   string         `json:"key_hash" db:"key_hash"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	Enabled   bool           `json:"enabled" db:"enabled"`
	UID       string         `json:"uid" db:"uid"`
}

// NewAPIKey constructs an API key record from an already-hashed secret.
// CreatedAt is stamped with the current UTC time at microsecond precision,
// and the UID is derived from the hash before the record is returned: the
// UID is never settable independently of key_hash, and key_hash is immutable
// after construction, so the two can never drift apart.
func NewAPIKey(user, keyHash string) (*APIKey, error) {
	if user == "" {
		return nil, missingField("user")
	}
	if keyHash == "" {
		return nil, missingField("key_hash")
	}
	k := &APIKey{
		User:      user,
		KeyHash:   keyHash,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Enabled:   true,
	}
	k.UID = DeriveUID(ResourceTypeAPIKey, k.KeyHash)
	return k, nil
}

// MaskSecrets deep-copies the export, then unconditionally replaces key_hash
// and uid with the masking sentinel. There is no privileged unmasked path
// through this operation; internal matching logic reads the live record.
//
// The hash is one way and nominally safe to show, but it is treated as
// secret-equivalent here, and since the uid is a deterministic function of
// the hash, leaving it unmasked would hand out an equality oracle.
func (k *APIKey) MaskSecrets(export Export) Export {
	out := CopyExport(export)
	out["key_hash"] = MaskedAttributeValue
	out["uid"] = MaskedAttributeValue
	return out
}

// Export returns the full, unmasked representation. Anything exposing the
// record outside the trust boundary must pass the result through MaskSecrets.
func (k *APIKey) Export() Export {
	export := Export{
		"id":         k.ID,
		"user":       k.User,
		"key_hash":   k.KeyHash,
		"created_at": k.CreatedAt,
		"enabled":    k.Enabled,
		"uid":        k.UID,
	}
	if k.Metadata != nil {
		export["metadata"] = copyValue(k.Metadata)
	}
	return export
}
