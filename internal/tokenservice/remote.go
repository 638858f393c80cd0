package tokenservice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/requester"
	"go.uber.org/zap"
)

var (
	tokenRoute  = requester.RouteConfig{Path: "/oauth/token", Method: http.MethodPost}
	verifyRoute = requester.RouteConfig{Path: "/oauth/verify", Method: http.MethodPost}
)

// Remote talks to a token service over HTTP.
type Remote struct {
	token  requester.RouteExecutor
	verify requester.RouteExecutor
}

// NewRemote creates a client for the token service at baseURL. A nil client gets a pooled default.
func NewRemote(client *http.Client, baseURL string, timeout time.Duration) *Remote {
	r := requester.NewHTTPRequester(client, requester.Endpoint{BaseURL: baseURL})
	if timeout > 0 {
		r.SetTimeout(timeout)
	}
	return &Remote{
		token:  r.BuildRouteExecutor(tokenRoute),
		verify: r.BuildRouteExecutor(verifyRoute),
	}
}

func (r *Remote) Exchange(ctx context.Context, provider models.ProviderID, code, state string) (*models.UserSession, error) {
	resp, err := r.token(ctx, requester.Params{Body: models.TokenRequest{
		Code:     code,
		Provider: string(provider),
		State:    state,
	}})
	if err != nil {
		return nil, transportError(provider, autherr.ErrTokenExchangeFailed, err)
	}
	if !resp.IsSuccess() {
		return nil, responseError(provider, autherr.ErrTokenExchangeFailed, resp)
	}

	var session models.UserSession
	if err := resp.Decode(&session); err != nil {
		return nil, &autherr.ProviderError{Kind: autherr.ErrParseFailed, Provider: string(provider), Err: err}
	}
	return &session, nil
}

func (r *Remote) Refresh(ctx context.Context, provider models.ProviderID, refreshToken, userID string) (*models.TokenSet, error) {
	resp, err := r.token(ctx, requester.Params{Body: models.TokenRequest{
		Provider:     string(provider),
		RefreshToken: refreshToken,
		UserID:       userID,
	}})
	if err != nil {
		return nil, transportError(provider, autherr.ErrRefreshFailed, err)
	}
	if !resp.IsSuccess() {
		return nil, responseError(provider, autherr.ErrRefreshFailed, resp)
	}

	var out models.RefreshResponse
	if err := resp.Decode(&out); err != nil {
		return nil, &autherr.ProviderError{Kind: autherr.ErrParseFailed, Provider: string(provider), Err: err}
	}
	if out.Tokens.RefreshToken == "" {
		out.Tokens.RefreshToken = refreshToken
	}
	return &out.Tokens, nil
}

// Verify reports false on 401. Transport failures and other statuses are errors.
func (r *Remote) Verify(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (bool, error) {
	resp, err := r.verify(ctx, requester.Params{Body: models.VerifyRequest{
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
		Provider:    string(provider),
	}})
	if err != nil {
		return false, fmt.Errorf("%w: %w", autherr.ErrTransport, err)
	}

	switch {
	case resp.IsSuccess():
		var out models.VerifyResponse
		if err := resp.Decode(&out); err != nil {
			return false, fmt.Errorf("%w: %w", autherr.ErrParseFailed, err)
		}
		return out.Valid, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return false, nil
	default:
		return false, responseError(provider, autherr.ErrTransport, resp)
	}
}

// responseError maps a non-2xx answer onto the error taxonomy. 5xx answers count as
// transport failures so they never clear a session.
func responseError(provider models.ProviderID, kind error, resp *requester.Response) error {
	var body models.ErrorResponse
	if err := resp.Decode(&body); err != nil {
		logger.Debug("Token service error body is not JSON", zap.Int("status", resp.StatusCode))
	}
	raw := body.Details
	if raw == "" {
		raw = body.Error
	}
	if raw == "" {
		raw = string(resp.Body)
	}

	pe := &autherr.ProviderError{
		Kind:       kind,
		Provider:   string(provider),
		StatusCode: resp.StatusCode,
		RawBody:    raw,
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		pe.Kind = autherr.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		pe.Err = autherr.ErrTransport
	case body.Error == "Invalid provider":
		pe.Kind = autherr.ErrInvalidProvider
	case body.Error == "Missing required parameters":
		pe.Kind = autherr.ErrMissingParameters
	case body.Error == "Failed to fetch user profile":
		pe.Kind = autherr.ErrProfileFetchFailed
	}
	return pe
}

func transportError(provider models.ProviderID, kind, err error) error {
	return &autherr.ProviderError{
		Kind:     kind,
		Provider: string(provider),
		Err:      fmt.Errorf("%w: %w", autherr.ErrTransport, err),
	}
}
