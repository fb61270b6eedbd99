package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/store"
)

// StoreResolver resolves roles from the role_assignments table in the system
// store. Assignments come back in the order they were granted; includeRemote
// widens the result to assignments synced from external identity sources.
type StoreResolver struct {
	store *store.Store
}

// NewStoreResolver returns a resolver backed by st.
func NewStoreResolver(st *store.Store) *StoreResolver {
	return &StoreResolver{store: st}
}

// GetRolesForUser implements model.RoleResolver. Unlike the store layer,
// which answers "no assignments" for any name, the resolver distinguishes a
// missing user and reports it as ErrUserNotFound.
func (r *StoreResolver) GetRolesForUser(ctx context.Context, user string, includeRemote bool) ([]model.Role, error) {
	if _, err := r.store.GetUserByName(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, user)
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	roles, err := r.store.RolesForUser(ctx, user, includeRemote)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	return roles, nil
}
