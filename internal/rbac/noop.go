package rbac

import (
	"context"

	"github.com/pimguilherme/st2/internal/model"
)

// NoopResolver is the backend used when RBAC is disabled. Every user
// resolves to an empty role list; no existence check is performed.
type NoopResolver struct{}

// GetRolesForUser implements model.RoleResolver.
func (NoopResolver) GetRolesForUser(ctx context.Context, user string, includeRemote bool) ([]model.Role, error) {
	return []model.Role{}, nil
}
