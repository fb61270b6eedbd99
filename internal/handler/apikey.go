package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pimguilherme/st2/internal/service"
)

// APIKeyHandler serves API key management endpoints. Exports always mask
// key_hash and uid; the raw key appears only in the creation response.
type APIKeyHandler struct {
	auth *service.AuthService
}

func NewAPIKeyHandler(auth *service.AuthService) *APIKeyHandler {
	return &APIKeyHandler{auth: auth}
}

type createAPIKeyRequest struct {
	User     string         `json:"user"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Create mints a new API key. The response carries the raw key exactly once;
// afterwards only the masked record is retrievable.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	rawKey, key, err := h.auth.CreateAPIKey(r.Context(), req.User, req.Metadata)
	if err != nil {
		writeStoreError(w, err, "create api key")
		return
	}

	export := maskedExport(key)
	export["key"] = rawKey
	writeJSON(w, http.StatusCreated, export)
}

// List returns masked API key records, optionally filtered by ?user=.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.auth.ListAPIKeys(r.Context(), queryString(r, "user"))
	if err != nil {
		writeStoreError(w, err, "list api keys")
		return
	}
	writeJSON(w, http.StatusOK, maskedList(keys))
}

type updateAPIKeyRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled revokes or reinstates a key.
func (h *APIKeyHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req updateAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.auth.SetAPIKeyEnabled(r.Context(), id, req.Enabled); err != nil {
		writeStoreError(w, err, "update api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a key record entirely.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	if err := h.auth.DeleteAPIKey(r.Context(), id); err != nil {
		writeStoreError(w, err, "delete api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
