package services

import (
	"fmt"

	"github.com/jadapache/raices-vivas/core"
)

// BaseEndpoints returns framework-agnostic endpoint descriptions
// for all core authentication endpoints.
//
// Each endpoint is a template:
// - Path and Method are set
// - Protected marks routes that need a bearer token or auth cookie
// - Metadata contains OpenAPI information
//
// Adapters attach their own handlers; the same list feeds BuildOpenAPI.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/sign-up",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: "signUpWithEmailAndPassword",
				Description: "Sign up a user using email and password",
				Tag:         "auth",
				RequestBody: core.SignUpInput{},
				Responses:   map[int]string{201: "User, profile and session created", 400: "Invalid input", 409: "Email already registered"},
			},
		},
		{
			Path:   "/sign-in",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: "signInWithEmailAndPassword",
				Description: "Sign in a user using email and password",
				Tag:         "auth",
				RequestBody: core.SignInInput{},
				Responses:   map[int]string{200: "Signed in", 400: "Invalid input", 401: "Invalid email or password"},
			},
		},
		{
			Path:      "/sign-out",
			Method:    "POST",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: "signOut",
				Description: "Sign out the current user and invalidate the session",
				Tag:         "auth",
				Responses:   map[int]string{200: "Signed out", 401: "Not authenticated"},
			},
		},
		{
			Path:      "/session",
			Method:    "GET",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: "getSession",
				Description: "Get the current user's session data",
				Tag:         "auth",
				Responses:   map[int]string{200: "Current session", 401: "Not authenticated"},
			},
		},
		{
			Path:      "/refresh",
			Method:    "POST",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: "refreshToken",
				Description: "Rotate the session token and extend its expiry",
				Tag:         "auth",
				Responses:   map[int]string{200: "Rotated token", 401: "Not authenticated"},
			},
		},
		{
			Path:      "/change-password",
			Method:    "POST",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: "changePassword",
				Description: "Change the password of the current user",
				Tag:         "auth",
				RequestBody: core.ChangePasswordInput{},
				Responses:   map[int]string{200: "Password changed", 400: "Weak or missing password", 401: "Wrong current password"},
			},
		},
		{
			Path:      "/profile",
			Method:    "GET",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: "getProfile",
				Description: "Get the marketplace profile of the current user",
				Tag:         "profile",
				Responses:   map[int]string{200: "Profile", 401: "Not authenticated", 404: "No profile for this account"},
			},
		},
		{
			Path:      "/profile",
			Method:    "PATCH",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: "updateProfile",
				Description: "Update the editable fields of the current user's profile",
				Tag:         "profile",
				RequestBody: core.ProfileUpdate{},
				Responses:   map[int]string{200: "Updated profile", 400: "Invalid input", 401: "Not authenticated", 404: "No profile for this account"},
			},
		},
		{
			Path:      "/visibility",
			Method:    "POST",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: "reportVisible",
				Description: "Tell the session stores of this session that the client is visible again",
				Tag:         "session",
				Responses:   map[int]string{202: "Recheck scheduled", 401: "Not authenticated"},
			},
		},
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
//
// It starts with base authentication endpoints and supports registration of
// additional plugin endpoints with automatic conflict detection.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
}

// NewEndpointRegistry creates a new registry with all base authentication endpoints
// pre-registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	// Register all base endpoints
	base := BaseEndpoints()
	for i := range base {
		_ = reg.register(&base[i])
	}

	return reg
}

// register adds a single endpoint to the registry with conflict detection.
// Returns error if an endpoint with the same METHOD:PATH already exists.
func (r *EndpointRegistry) register(ep *core.Endpoint) error {
	key := fmt.Sprintf("%s:%s", ep.Method, ep.Path)

	if _, exists := r.endpoints[key]; exists {
		return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
	}

	r.endpoints[key] = ep
	return nil
}

// RegisterPlugin registers additional plugin endpoints to the registry.
// Returns error if any plugin endpoint conflicts with existing endpoints
// or with other plugin endpoints in the same batch.
//
// If an error occurs, no endpoints from the plugin are registered.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	// First, check for conflicts with existing endpoints
	for i := range endpoints {
		ep := &endpoints[i]
		key := fmt.Sprintf("%s:%s", ep.Method, ep.Path)

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("plugin endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
	}

	// Check for conflicts within the plugin set itself
	seen := make(map[string]bool)
	for i := range endpoints {
		ep := &endpoints[i]
		key := fmt.Sprintf("%s:%s", ep.Method, ep.Path)

		if seen[key] {
			return fmt.Errorf("plugin contains duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		seen[key] = true
	}

	// No conflicts found, register all plugin endpoints
	for i := range endpoints {
		ep := &endpoints[i]
		r.endpoints[fmt.Sprintf("%s:%s", ep.Method, ep.Path)] = ep
	}

	return nil
}

// Endpoints returns a slice of all registered endpoints
// (both base and plugin endpoints).
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	return result
}
