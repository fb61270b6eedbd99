package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/service"
)

// SSOHandler serves the SSO handshake endpoints. The identity-provider
// integration itself sits in front of this service; these endpoints manage
// the request records and the token hand-off.
type SSOHandler struct {
	auth *service.AuthService
}

func NewSSOHandler(auth *service.AuthService) *SSOHandler {
	return &SSOHandler{auth: auth}
}

type initiateSSORequest struct {
	Type string `json:"type"`
}

// Initiate starts an SSO handshake. The response includes the response key
// for CLI handshakes; the initiating client is the one party that must see it.
func (h *SSOHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateSSORequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sso, err := h.auth.InitiateSSORequest(r.Context(), model.SSORequestType(req.Type))
	if err != nil {
		writeStoreError(w, err, "initiate sso request")
		return
	}
	writeJSON(w, http.StatusCreated, sso.Export())
}

type completeSSORequest struct {
	User string `json:"user"`
}

// Complete finishes a handshake for the verified user. The request record is
// consumed either way; replaying a request id yields 404.
func (h *SSOHandler) Complete(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	var req completeSSORequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	result, err := h.auth.CompleteSSORequest(r.Context(), requestID, req.User)
	if err != nil {
		switch err {
		case service.ErrSSORequestNotFound:
			writeError(w, http.StatusNotFound, err.Error())
		case service.ErrSSORequestExpired:
			writeError(w, http.StatusGone, err.Error())
		default:
			writeStoreError(w, err, "complete sso request")
		}
		return
	}

	resp := map[string]any{"token": result.Token.Export()}
	if result.EncryptedToken != "" {
		resp["encrypted_token"] = result.EncryptedToken
	}
	if result.CallbackAssertion != "" {
		resp["callback_assertion"] = result.CallbackAssertion
	}
	writeJSON(w, http.StatusOK, resp)
}
