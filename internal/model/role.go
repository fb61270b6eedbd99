package model

// Role is a named grouping of permissions resolved for a user by an RBAC
// backend. Policy evaluation happens inside the backend; this package only
// carries the resolved records, in the order the backend returned them.
type Role struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// System marks roles provisioned by the system itself rather than by an
	// administrator.
	System bool `json:"system"`
}
