package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brizzai/authlab/internal/auth/constants"
)

// HTTPRequestBuilder turns a route and its params into an *http.Request
type HTTPRequestBuilder struct {
	endpoint Endpoint
}

// NewHTTPRequestBuilder creates a new HTTPRequestBuilder
func NewHTTPRequestBuilder(endpoint Endpoint) *HTTPRequestBuilder {
	return &HTTPRequestBuilder{endpoint: endpoint}
}

// BuildRequest builds a request for route with the given params
func (b *HTTPRequestBuilder) BuildRequest(ctx context.Context, route *RouteConfig, params Params) (*Request, error) {
	if route == nil {
		return nil, fmt.Errorf("route config is nil")
	}

	reqURL, err := b.buildURL(route.Path, params)
	if err != nil {
		return nil, err
	}

	body, contentType, err := b.createRequestBody(route.Method, params.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request body: %w", err)
	}

	headers := map[string]string{
		"Accept":     "application/json",
		"User-Agent": constants.UserAgent,
	}
	for k, v := range b.endpoint.Headers {
		headers[k] = v
	}
	for k, v := range route.Headers {
		headers[k] = v
	}

	httpReq, err := http.NewRequestWithContext(ctx, route.Method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	return &Request{
		URL:         reqURL,
		Method:      route.Method,
		Body:        body,
		Headers:     headers,
		ContentType: contentType,
		HttpRequest: httpReq,
	}, nil
}

func (b *HTTPRequestBuilder) buildURL(path string, params Params) (string, error) {
	for key, value := range params.Path {
		path = strings.ReplaceAll(path, "{"+key+"}", url.PathEscape(value))
	}

	u, err := url.Parse(strings.TrimSuffix(b.endpoint.BaseURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid request URL: %w", err)
	}
	if len(params.Query) > 0 {
		q := u.Query()
		for key, values := range params.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (b *HTTPRequestBuilder) createRequestBody(method string, body any) (io.Reader, string, error) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if body == nil {
			return nil, "", nil
		}
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewReader(jsonData), "application/json", nil
	default:
		return nil, "", nil
	}
}
