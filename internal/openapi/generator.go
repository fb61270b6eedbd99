// Package openapi generates the OpenAPI document describing the st2auth API.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI 3.1 document for the auth API. The document is
// static: the API surface doesn't depend on runtime state.
func Generate(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "st2auth API",
			Description: "Identity and credential service: users, tokens, API keys, and SSO handshakes.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["authToken"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-Auth-Token",
		},
	}
	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "St2-Api-Key",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"authToken": {}},
		{"apiKey": {}},
	}

	addSchemas(doc)
	addPaths(doc)
	return doc
}

func addSchemas(doc *openapi3.T) {
	objSchema := func(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		}}
	}
	str := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
	integer := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}
	boolean := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
	object := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	dateTime := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}

	doc.Components.Schemas["Error"] = objSchema(openapi3.Schemas{
		"error": objSchema(openapi3.Schemas{
			"code":    integer,
			"message": str,
			"context": object,
		}),
	})
	doc.Components.Schemas["User"] = objSchema(openapi3.Schemas{
		"id":         integer,
		"name":       str,
		"is_service": boolean,
		"nicknames":  object,
	}, "name")
	doc.Components.Schemas["Token"] = objSchema(openapi3.Schemas{
		"id":       integer,
		"user":     str,
		"token":    str,
		"expiry":   dateTime,
		"metadata": object,
		"service":  boolean,
	})
	doc.Components.Schemas["APIKey"] = objSchema(openapi3.Schemas{
		"id":         integer,
		"user":       str,
		"key_hash":   str, // masked in every response
		"uid":        str, // masked in every response
		"metadata":   object,
		"created_at": dateTime,
		"enabled":    boolean,
	})
	doc.Components.Schemas["SSORequest"] = objSchema(openapi3.Schemas{
		"id":         integer,
		"request_id": str,
		"key":        str,
		"expiry":     dateTime,
		"type": &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"string"},
			Enum: []any{"cli", "web"},
		}},
	})
}

func addPaths(doc *openapi3.T) {
	doc.Paths = openapi3.NewPaths()

	jsonResponse := func(description, schemaRef string) *openapi3.Responses {
		responses := openapi3.NewResponses()
		responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef(schemaRef, nil)),
		}})
		return responses
	}

	doc.Paths.Set("/api/v1/tokens", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "issueToken",
			Summary:     "Issue a bearer token",
			Responses:   jsonResponse("Issued token, value shown once", "#/components/schemas/Token"),
		},
		Get: &openapi3.Operation{
			OperationID: "listTokens",
			Summary:     "List a user's tokens (masked)",
			Responses:   jsonResponse("Token list", "#/components/schemas/Token"),
		},
	})
	doc.Paths.Set("/api/v1/tokens/validate", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "validateToken",
			Summary:     "Validate the presented token",
			Responses:   jsonResponse("Valid token record", "#/components/schemas/Token"),
		},
	})
	doc.Paths.Set("/api/v1/tokens/{token}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			OperationID: "revokeToken",
			Summary:     "Revoke a token",
			Responses:   jsonResponse("Revoked", "#/components/schemas/Error"),
		},
	})
	doc.Paths.Set("/api/v1/users", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listUsers",
			Summary:     "List users",
			Responses:   jsonResponse("User list", "#/components/schemas/User"),
		},
		Post: &openapi3.Operation{
			OperationID: "createUser",
			Summary:     "Create a user",
			Responses:   jsonResponse("Created user", "#/components/schemas/User"),
		},
	})
	doc.Paths.Set("/api/v1/users/{name}", &openapi3.PathItem{
		Get:    &openapi3.Operation{OperationID: "getUser", Summary: "Get a user", Responses: jsonResponse("User", "#/components/schemas/User")},
		Put:    &openapi3.Operation{OperationID: "updateUser", Summary: "Update a user", Responses: jsonResponse("Updated user", "#/components/schemas/User")},
		Delete: &openapi3.Operation{OperationID: "deleteUser", Summary: "Delete a user", Responses: jsonResponse("Deleted", "#/components/schemas/Error")},
	})
	doc.Paths.Set("/api/v1/users/{name}/roles", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "getUserRoles",
			Summary:     "Resolve a user's roles through the RBAC backend",
			Responses:   jsonResponse("Role list", "#/components/schemas/User"),
		},
	})
	doc.Paths.Set("/api/v1/apikeys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listAPIKeys",
			Summary:     "List API keys (hashes and uids masked)",
			Responses:   jsonResponse("API key list", "#/components/schemas/APIKey"),
		},
		Post: &openapi3.Operation{
			OperationID: "createAPIKey",
			Summary:     "Create an API key; the raw key is returned once",
			Responses:   jsonResponse("Created API key", "#/components/schemas/APIKey"),
		},
	})
	doc.Paths.Set("/api/v1/apikeys/{id}", &openapi3.PathItem{
		Put:    &openapi3.Operation{OperationID: "setAPIKeyEnabled", Summary: "Enable or disable an API key", Responses: jsonResponse("Updated", "#/components/schemas/Error")},
		Delete: &openapi3.Operation{OperationID: "deleteAPIKey", Summary: "Delete an API key", Responses: jsonResponse("Deleted", "#/components/schemas/Error")},
	})
	doc.Paths.Set("/api/v1/sso/requests", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "initiateSSORequest",
			Summary:     "Start an SSO handshake",
			Responses:   jsonResponse("Pending SSO request", "#/components/schemas/SSORequest"),
		},
	})
	doc.Paths.Set("/api/v1/sso/requests/{id}/complete", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "completeSSORequest",
			Summary:     "Complete an SSO handshake (single use)",
			Responses:   jsonResponse("Issued token plus transport-specific payload", "#/components/schemas/Token"),
		},
	})
}
