package model

import (
	"strings"
	"time"
)

// MaskedAttributeValue is the sentinel substituted for every field classified
// as secret when a record is exported for external consumption. The same
// constant is used across all record types.
const MaskedAttributeValue = "********"

// UIDSeparator joins the resource type and identifying field values into a UID.
const UIDSeparator = ":"

// Export is a fully materialized, serialization-ready representation of a
// record: field name to value.
type Export map[string]any

// Record is the minimal contract every persisted record satisfies: a
// store-assigned surrogate id plus the universal secret-masking operation.
type Record interface {
	// GetID returns the store-assigned surrogate identifier. Zero means the
	// record has not been persisted yet.
	GetID() int64

	// MaskSecrets returns a deep copy of the export with every field the
	// record classifies as secret replaced by MaskedAttributeValue. The
	// input is never mutated.
	MaskSecrets(Export) Export
}

// Base carries the surrogate id shared by every record. The id is assigned
// by the store on insert and is opaque to this package.
type Base struct {
	ID int64 `json:"id" db:"id"`
}

// GetID returns the store-assigned surrogate identifier.
func (b Base) GetID() int64 { return b.ID }

// MaskSecrets is the default masking operation for records with nothing to
// hide: a pure deep copy. Records with secret fields override it.
func (Base) MaskSecrets(export Export) Export {
	return CopyExport(export)
}

// DeriveUID computes the deterministic unique identifier for a record from
// its resource-type namespace and identifying field values, e.g.
// DeriveUID("api_key", keyHash) -> "api_key:<hash>". A pure function of its
// inputs; recompute it whenever they are set.
func DeriveUID(resourceType string, fields ...string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, resourceType)
	parts = append(parts, fields...)
	return strings.Join(parts, UIDSeparator)
}

// CopyExport returns a deep copy of an export. Nested maps and slices are
// copied recursively so that masking can never alias the caller's data.
func CopyExport(export Export) Export {
	if export == nil {
		return nil
	}
	out := make(Export, len(export))
	for k, v := range export {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case Export:
		return CopyExport(val)
	case map[string]any:
		return map[string]any(CopyExport(Export(val)))
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		// Scalars and time.Time are value types; share as-is.
		return v
	}
}

// ExpiredAt reports whether a record with the given expiry is expired at the
// given instant, compared in UTC. The boundary counts as expired: now >= expiry.
func ExpiredAt(expiry, now time.Time) bool {
	return !now.UTC().Before(expiry.UTC())
}
