package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brizzai/authlab/internal/logger"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

// HTTPRequester builds and executes JSON requests against one endpoint
type HTTPRequester struct {
	client  *http.Client
	builder *HTTPRequestBuilder
}

// NewHTTPRequester creates a requester for endpoint. A nil client gets a pooled default.
func NewHTTPRequester(client *http.Client, endpoint Endpoint) *HTTPRequester {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	return &HTTPRequester{
		client:  client,
		builder: NewHTTPRequestBuilder(endpoint),
	}
}

// SetTimeout sets the timeout for the HTTP client
func (r *HTTPRequester) SetTimeout(timeout time.Duration) {
	c := *r.client
	c.Timeout = timeout
	r.client = &c
}

// Do builds and executes a single request
func (r *HTTPRequester) Do(ctx context.Context, route RouteConfig, params Params) (*Response, error) {
	req, err := r.builder.BuildRequest(ctx, &route, params)
	if err != nil {
		return nil, err
	}
	logger.Debug("request route", zap.String("method", req.Method), zap.String("url", req.URL))

	resp, err := r.execute(req)
	if err != nil {
		logger.Warn("failed to execute request", zap.String("url", req.URL), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// BuildRouteExecutor creates a function that executes requests for a specific route
func (r *HTTPRequester) BuildRouteExecutor(route RouteConfig) RouteExecutor {
	return func(ctx context.Context, params Params) (*Response, error) {
		return r.Do(ctx, route, params)
	}
}

func (r *HTTPRequester) execute(req *Request) (*Response, error) {
	resp, err := r.client.Do(req.HttpRequest)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("Failed to close response body", zap.Error(closeErr))
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}
