// Package exchange talks to provider token and user-info endpoints and normalizes
// what comes back into the common token and profile shapes.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/constants"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const maxErrorBody = 64 << 10

// Client performs the authorization_code and refresh_token grants and the user-info
// calls. Nothing is retried: a failed attempt is returned to the caller as is.
type Client struct {
	registry   *providers.Registry
	httpClient *http.Client
	clock      clockwork.Clock
}

type Option func(*Client)

// WithHTTPClient sets the client whose transport and timeout are used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = newHTTPClient(c) }
}

// WithClock sets the clock used to stamp token expiry.
func WithClock(c clockwork.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

func NewClient(registry *providers.Registry, opts ...Option) *Client {
	c := &Client{
		registry:   registry,
		httpClient: newHTTPClient(nil),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the provider table the client was built with.
func (c *Client) Registry() *providers.Registry {
	return c.registry
}

// ExchangeCode trades an authorization code for tokens and then fetches and normalizes
// the profile with the new access token.
func (c *Client) ExchangeCode(ctx context.Context, provider models.ProviderID, code, redirectURI string) (*models.TokenSet, *models.UserProfile, error) {
	p, err := c.registry.Get(provider)
	if err != nil {
		return nil, nil, err
	}
	if code == "" {
		return nil, nil, fmt.Errorf("%w: code", autherr.ErrMissingParameters)
	}
	if !p.HasCredentials() {
		return nil, nil, &autherr.ProviderError{Kind: autherr.ErrTokenExchangeFailed, Provider: string(p.ID), Err: autherr.ErrMissingCredentials}
	}

	tok, err := p.OAuth2Config(redirectURI).Exchange(c.oauthContext(ctx, p), code)
	if err != nil {
		perr := providerError(p, autherr.ErrTokenExchangeFailed, err)
		logger.Error("Token exchange failed", logger.Provider(string(p.ID)), zap.Error(perr))
		return nil, nil, perr
	}
	tokens := c.normalizeTokens(p, tok, "")

	profile, err := c.Profile(ctx, p.ID, tokens)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Authorization code exchanged", logger.Provider(string(p.ID)), logger.UserID(profile.ID))
	return tokens, profile, nil
}

// Refresh runs the refresh_token grant. A response without a refresh token keeps the one passed in.
func (c *Client) Refresh(ctx context.Context, provider models.ProviderID, refreshToken string) (*models.TokenSet, error) {
	p, err := c.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token", autherr.ErrMissingParameters)
	}
	if !p.HasCredentials() {
		return nil, &autherr.ProviderError{Kind: autherr.ErrRefreshFailed, Provider: string(p.ID), Err: autherr.ErrMissingCredentials}
	}

	src := p.OAuth2Config("").TokenSource(c.oauthContext(ctx, p), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		perr := providerError(p, autherr.ErrRefreshFailed, err)
		logger.Warn("Token refresh failed", logger.Provider(string(p.ID)), zap.Error(perr))
		return nil, perr
	}

	return c.normalizeTokens(p, tok, refreshToken), nil
}

// Profile fetches the raw user-info payload and maps it. For GitHub accounts with a
// private email the primary address is resolved from the emails list.
func (c *Client) Profile(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (*models.UserProfile, error) {
	p, err := c.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	raw, err := c.FetchProfile(ctx, provider, tokens)
	if err != nil {
		return nil, err
	}

	profile, err := p.NormalizeProfile(raw)
	if err != nil {
		return nil, err
	}

	if profile.Email == "" && p.EmailsURL != "" {
		email, err := c.primaryEmail(ctx, p, tokens)
		if err != nil {
			logger.Warn("Failed to resolve primary email", logger.Provider(string(p.ID)), zap.Error(err))
		} else {
			profile.Email = email
		}
	}

	return &profile, nil
}

// FetchProfile returns the provider's raw user-info payload. Numbers are kept as json.Number.
func (c *Client) FetchProfile(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (map[string]any, error) {
	p, err := c.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := c.getJSON(ctx, p, p.UserInfoURL, tokens, autherr.ErrProfileFetchFailed, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Verify asks the user-info endpoint whether the access token is still accepted.
// Any 2xx means valid and any other status means invalid. Only transport failures return an error.
func (c *Client) Verify(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (bool, error) {
	p, err := c.registry.Get(provider)
	if err != nil {
		return false, err
	}

	resp, err := c.get(ctx, p.UserInfoURL, tokens)
	if err != nil {
		return false, transportError(p, autherr.ErrProfileFetchFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	return resp.StatusCode >= 200 && resp.StatusCode <= 299, nil
}

func (c *Client) primaryEmail(ctx context.Context, p providers.ProviderConfig, tokens *models.TokenSet) (string, error) {
	var emails []providers.GitHubEmail
	if err := c.getJSON(ctx, p, p.EmailsURL, tokens, autherr.ErrProfileFetchFailed, &emails); err != nil {
		return "", err
	}
	return providers.PrimaryEmail(emails), nil
}

func (c *Client) get(ctx context.Context, endpoint string, tokens *models.TokenSet) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(constants.AuthHeaderName, tokens.AuthorizationHeader())
	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, p providers.ProviderConfig, endpoint string, tokens *models.TokenSet, kind error, out any) error {
	resp, err := c.get(ctx, endpoint, tokens)
	if err != nil {
		return transportError(p, kind, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &autherr.ProviderError{Kind: kind, Provider: string(p.ID), StatusCode: resp.StatusCode, RawBody: string(body)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &autherr.ProviderError{Kind: kind, Provider: string(p.ID), Err: fmt.Errorf("%w: %w", autherr.ErrParseFailed, err)}
	}
	return nil
}

func (c *Client) oauthContext(ctx context.Context, p providers.ProviderConfig) context.Context {
	ctx = withResponseEncoding(ctx, p.ResponseEncoding)
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// normalizeTokens converts an oauth2 token into a TokenSet, stamping the expiry from now.
func (c *Client) normalizeTokens(p providers.ProviderConfig, tok *oauth2.Token, priorRefresh string) *models.TokenSet {
	expiresIn := expiresInSeconds(tok)
	if expiresIn <= 0 {
		expiresIn = constants.DefaultExpiresIn
	}

	scope, _ := tok.Extra("scope").(string)
	if scope == "" {
		scope = p.ScopeString()
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = priorRefresh
	}

	return &models.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
		TokenType:    tok.Type(),
		Scope:        scope,
		ExpiresAt:    c.clock.Now().Add(time.Duration(expiresIn) * time.Second).UnixMilli(),
	}
}

// expiresInSeconds reads expires_in from either a JSON or a query-string token body.
func expiresInSeconds(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}

// providerError classifies an oauth2 grant error into the shared taxonomy.
func providerError(p providers.ProviderConfig, kind error, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &autherr.ProviderError{Kind: kind, Provider: string(p.ID), StatusCode: status, RawBody: string(re.Body), Err: err}
	}

	var ue *url.Error
	if errors.As(err, &ue) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return transportError(p, kind, err)
	}

	return &autherr.ProviderError{Kind: kind, Provider: string(p.ID), Err: fmt.Errorf("%w: %w", autherr.ErrParseFailed, err)}
}

func transportError(p providers.ProviderConfig, kind error, err error) error {
	return &autherr.ProviderError{Kind: kind, Provider: string(p.ID), Err: fmt.Errorf("%w: %w", autherr.ErrTransport, err)}
}
