package openapi

import (
	"encoding/json"
	"testing"
)

func TestGenerate(t *testing.T) {
	doc := Generate("http://localhost:9100", "1.0.0")

	if doc.Info.Title != "st2auth API" {
		t.Errorf("title: got %q", doc.Info.Title)
	}
	if doc.Components.SecuritySchemes["authToken"].Value.Name != "X-Auth-Token" {
		t.Error("authToken scheme should use the X-Auth-Token header")
	}
	if doc.Components.SecuritySchemes["apiKey"].Value.Name != "St2-Api-Key" {
		t.Error("apiKey scheme should use the St2-Api-Key header")
	}

	for _, path := range []string{
		"/api/v1/tokens",
		"/api/v1/tokens/validate",
		"/api/v1/tokens/{token}",
		"/api/v1/users",
		"/api/v1/users/{name}",
		"/api/v1/users/{name}/roles",
		"/api/v1/apikeys",
		"/api/v1/apikeys/{id}",
		"/api/v1/sso/requests",
		"/api/v1/sso/requests/{id}/complete",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("missing path %s", path)
		}
	}

	for _, schema := range []string{"Error", "User", "Token", "APIKey", "SSORequest"} {
		if _, ok := doc.Components.Schemas[schema]; !ok {
			t.Errorf("missing schema %s", schema)
		}
	}

	// The document must serialize cleanly.
	if _, err := json.Marshal(doc); err != nil {
		t.Fatalf("marshal document: %v", err)
	}
}
