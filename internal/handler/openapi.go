package handler

import (
	"net/http"

	"github.com/pimguilherme/st2/internal/openapi"
)

// OpenAPIHandler serves the generated OpenAPI document for the auth API.
type OpenAPIHandler struct {
	baseURL string
	version string
}

func NewOpenAPIHandler(baseURL, version string) *OpenAPIHandler {
	return &OpenAPIHandler{baseURL: baseURL, version: version}
}

// ServeSpec returns the OpenAPI 3.1 document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openapi.Generate(h.baseURL, h.version))
}
