package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/rbac"
	"github.com/pimguilherme/st2/internal/service"
	"github.com/pimguilherme/st2/internal/store"
)

// UserHandler serves user management and role resolution endpoints.
type UserHandler struct {
	auth  *service.AuthService
	store *store.Store
}

func NewUserHandler(auth *service.AuthService, st *store.Store) *UserHandler {
	return &UserHandler{auth: auth, store: st}
}

type userRequest struct {
	Name      string            `json:"name"`
	IsService bool              `json:"is_service"`
	Nicknames map[string]string `json:"nicknames,omitempty"`
}

// List returns all users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, err, "list users")
		return
	}
	writeJSON(w, http.StatusOK, maskedList(users))
}

// Create registers a new user.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	user, err := model.NewUser(req.Name)
	if err != nil {
		writeStoreError(w, err, "create user")
		return
	}
	user.IsService = req.IsService
	user.Nicknames = req.Nicknames

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		writeStoreError(w, err, "create user")
		return
	}
	writeJSON(w, http.StatusCreated, maskedExport(user))
}

// Get returns a single user by name.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	user, err := h.store.GetUserByName(r.Context(), name)
	if err != nil {
		writeStoreError(w, err, "get user")
		return
	}
	writeJSON(w, http.StatusOK, maskedExport(user))
}

// Update replaces a user's mutable fields.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	user, err := h.store.GetUserByName(r.Context(), name)
	if err != nil {
		writeStoreError(w, err, "update user")
		return
	}

	var req userRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	user.IsService = req.IsService
	user.Nicknames = req.Nicknames

	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		writeStoreError(w, err, "update user")
		return
	}
	writeJSON(w, http.StatusOK, maskedExport(user))
}

// Delete removes a user record. Credentials referencing the name are left in
// place; revoke them separately.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.DeleteUser(r.Context(), name); err != nil {
		writeStoreError(w, err, "delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Roles resolves the user's roles through the configured RBAC backend.
// ?remote=true widens the result to remotely synced assignments.
func (h *UserHandler) Roles(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	user, err := h.auth.GetUser(r.Context(), name)
	if err != nil {
		writeStoreError(w, err, "get user")
		return
	}

	roles, err := user.GetRoles(r.Context(), queryBool(r, "remote"))
	if err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found in rbac backend")
			return
		}
		if errors.Is(err, model.ErrNoRoleResolver) {
			writeError(w, http.StatusNotImplemented, "no rbac backend configured")
			return
		}
		writeStoreError(w, err, "resolve roles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  name,
		"roles": roles,
	})
}
