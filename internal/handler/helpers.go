// Package handler implements the HTTP handlers for the st2auth API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pimguilherme/st2/internal/model"
	"github.com/pimguilherme/st2/internal/service"
	"github.com/pimguilherme/st2/internal/store"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]any) {
	var ctxMap map[string]any
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// writeStoreError maps store and service errors onto the API's status codes.
// Records that don't exist are 404, uniqueness conflicts 409, validation
// failures 400, and everything else (backend unavailable or failing) 500.
func writeStoreError(w http.ResponseWriter, err error, fallbackMsg string) {
	var verr *model.ValidationError
	var uerr *store.UniquenessError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg+": not found")
	case errors.As(err, &uerr):
		writeError(w, http.StatusConflict, fallbackMsg+": "+uerr.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, fallbackMsg+": "+verr.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrKeyRevoked):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallbackMsg+": "+err.Error())
	}
}

// exportable is satisfied by every record type the API serves.
type exportable interface {
	model.Record
	Export() model.Export
}

// maskedExport materializes a record and masks its secret fields. Every
// record leaving the API goes through this.
func maskedExport(rec exportable) model.Export {
	return rec.MaskSecrets(rec.Export())
}

// maskedList wraps records into the list envelope, masking each one first.
func maskedList[T exportable](records []T) model.ListResponse {
	resources := make([]model.Export, len(records))
	for i, rec := range records {
		resources[i] = maskedExport(rec)
	}
	return model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	}
}
