package model

import "context"

// RoleResolver resolves the roles assigned to a user identity. Concrete
// backends live in internal/rbac and are selected by configuration; records
// receive one by injection, never through a global lookup.
type RoleResolver interface {
	// GetRolesForUser returns the roles assigned to the named user, in the
	// order the backend defines. includeRemote controls whether assignments
	// synced from remote identity sources are included. Implementations may
	// perform network or store I/O; callers should treat this as a blocking
	// call and own any timeout via ctx.
	GetRolesForUser(ctx context.Context, user string, includeRemote bool) ([]Role, error)
}

// User represents a system user. Name is globally unique and doubles as the
// value credential records reference: a denormalized foreign key with no
// referential integrity, so deleting a user does not cascade to its tokens
// or API keys.
type User struct {
	Base
	Name      string `json:"name" db:"name"`
	IsService bool   `json:"is_service" db:"is_service"`
	// Nicknames maps a chat origin (e.g. "slack") to the user's nickname on
	// that origin, for ChatOps authentication.
	Nicknames map[string]string `json:"nicknames,omitempty"`

	resolver RoleResolver
}

// NewUser validates the required fields and returns the record.
func NewUser(name string) (*User, error) {
	if name == "" {
		return nil, missingField("name")
	}
	return &User{Name: name}, nil
}

// AttachRoleResolver injects the RBAC backend consulted by GetRoles. Called
// at wiring time; attaching nil detaches the backend.
func (u *User) AttachRoleResolver(r RoleResolver) {
	u.resolver = r
}

// GetRoles returns the roles assigned to this user by delegating to the
// attached RBAC backend. The backend's ordering is preserved and its errors
// propagate unchanged; no caching or filtering happens here. Returns
// ErrNoRoleResolver when no backend is attached.
func (u *User) GetRoles(ctx context.Context, includeRemote bool) ([]Role, error) {
	if u.resolver == nil {
		return nil, ErrNoRoleResolver
	}
	return u.resolver.GetRolesForUser(ctx, u.Name, includeRemote)
}

// GetPermissionAssignments is reserved for future permission listing.
func (u *User) GetPermissionAssignments() ([]any, error) {
	return nil, ErrNotImplemented
}

// Export returns the serialized representation of the user. Users carry no
// secret fields, so the base MaskSecrets (deep copy) applies.
func (u *User) Export() Export {
	export := Export{
		"id":         u.ID,
		"name":       u.Name,
		"is_service": u.IsService,
	}
	if u.Nicknames != nil {
		export["nicknames"] = copyValue(u.Nicknames)
	}
	return export
}
