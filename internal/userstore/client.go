// Package userstore talks to the users/tokens persistence collaborator.
package userstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/requester"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// UserRecord is a profile as stored by the collaborator
type UserRecord struct {
	models.UserProfile
	CreatedAt int64 `json:"createdAt,omitempty"`
	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

// TokenRecord is a token set linked to a user and provider
type TokenRecord struct {
	ID string `json:"id,omitempty"`
	models.TokenSet
	UserID    string `json:"userId"`
	Provider  string `json:"provider"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

var (
	listUsers   = requester.RouteConfig{Path: "/users", Method: http.MethodGet}
	getUser     = requester.RouteConfig{Path: "/users/{id}", Method: http.MethodGet}
	createUser  = requester.RouteConfig{Path: "/users", Method: http.MethodPost}
	patchUser   = requester.RouteConfig{Path: "/users/{id}", Method: http.MethodPatch}
	listTokens  = requester.RouteConfig{Path: "/tokens", Method: http.MethodGet}
	createToken = requester.RouteConfig{Path: "/tokens", Method: http.MethodPost}
	patchToken  = requester.RouteConfig{Path: "/tokens/{id}", Method: http.MethodPatch}
)

// Store is what the token service needs from persistence
type Store interface {
	SaveUser(ctx context.Context, profile models.UserProfile) (models.UserProfile, error)
	SaveTokens(ctx context.Context, tokens models.TokenSet, userID string, provider models.ProviderID) error
	GetUser(ctx context.Context, id string) (*UserRecord, error)
}

// Client issues find-or-create-else-update sequences against the collaborator
type Client struct {
	requester *requester.HTTPRequester
	clock     clockwork.Clock
}

func NewClient(r *requester.HTTPRequester, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{requester: r, clock: clock}
}

// SaveUser creates or updates the profile keyed by (id, provider). On any failure it
// returns the profile it was given together with an ErrPersistenceFailed error.
func (c *Client) SaveUser(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	saved, err := c.saveUser(ctx, profile)
	if err != nil {
		return profile, fmt.Errorf("%w: save user: %w", autherr.ErrPersistenceFailed, err)
	}
	return saved, nil
}

func (c *Client) saveUser(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	var existing []UserRecord
	if err := c.call(ctx, listUsers, requester.Params{Query: url.Values{
		"id":       {profile.ID},
		"provider": {string(profile.Provider)},
	}}, &existing); err != nil {
		return profile, err
	}

	now := c.clock.Now().UnixMilli()
	record := UserRecord{UserProfile: profile, UpdatedAt: now}

	var saved UserRecord
	if len(existing) > 0 {
		record.CreatedAt = existing[0].CreatedAt
		err := c.call(ctx, patchUser, requester.Params{Path: map[string]string{"id": existing[0].ID}, Body: record}, &saved)
		return saved.UserProfile, err
	}

	record.CreatedAt = now
	err := c.call(ctx, createUser, requester.Params{Body: record}, &saved)
	return saved.UserProfile, err
}

// SaveTokens creates or updates the token record for (userID, provider).
func (c *Client) SaveTokens(ctx context.Context, tokens models.TokenSet, userID string, provider models.ProviderID) error {
	var existing []TokenRecord
	if err := c.call(ctx, listTokens, requester.Params{Query: url.Values{
		"userId":   {userID},
		"provider": {string(provider)},
	}}, &existing); err != nil {
		return fmt.Errorf("%w: find tokens: %w", autherr.ErrPersistenceFailed, err)
	}

	now := c.clock.Now().UnixMilli()
	record := TokenRecord{TokenSet: tokens, UserID: userID, Provider: string(provider), UpdatedAt: now}

	var err error
	if len(existing) > 0 {
		record.ID = existing[0].ID
		record.CreatedAt = existing[0].CreatedAt
		err = c.call(ctx, patchToken, requester.Params{Path: map[string]string{"id": existing[0].ID}, Body: record}, nil)
	} else {
		record.CreatedAt = now
		err = c.call(ctx, createToken, requester.Params{Body: record}, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: save tokens: %w", autherr.ErrPersistenceFailed, err)
	}
	return nil
}

// GetUser loads a user by record id. A missing record is ErrNotFound.
func (c *Client) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	resp, err := c.requester.Do(ctx, getUser, requester.Params{Path: map[string]string{"id": id}})
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %w", autherr.ErrPersistenceFailed, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("user %q: %w", id, autherr.ErrNotFound)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: get user: status %d", autherr.ErrPersistenceFailed, resp.StatusCode)
	}

	var user UserRecord
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrPersistenceFailed, err)
	}
	return &user, nil
}

func (c *Client) call(ctx context.Context, route requester.RouteConfig, params requester.Params, out any) error {
	resp, err := c.requester.Do(ctx, route, params)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		logger.Debug("Store rejected request", zap.String("path", route.Path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s %s: status %d", route.Method, route.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}
