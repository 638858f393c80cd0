package requester

import (
	"net/url"
)

// Endpoint describes a remote JSON API
type Endpoint struct {
	BaseURL string            `json:"base_url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// RouteConfig holds the configuration for a specific route. Path may contain
// {name} placeholders filled from Params.Path.
type RouteConfig struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Params carries the per-call values for a route
type Params struct {
	Path  map[string]string
	Query url.Values
	Body  any
}
