package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/exchange"
	"github.com/brizzai/authlab/internal/auth/handlers"
	"github.com/brizzai/authlab/internal/auth/middleware"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/config"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/userstore"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Service is the token exchange and user-info service: it runs provider grants and
// records users and tokens with the persistence collaborator.
type Service struct {
	exchanger    *exchange.Client
	store        userstore.Store
	clock        clockwork.Clock
	redirectURL  string
	allowOrigins []string
	handler      *handlers.Handler
}

// NewService creates a new token service
func NewService(cfg *config.Config, exchanger *exchange.Client, store userstore.Store, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Service{
		exchanger:    exchanger,
		store:        store,
		clock:        clock,
		redirectURL:  cfg.RedirectURL(),
		allowOrigins: cfg.Server.AllowOrigins,
	}
	s.handler = handlers.NewHandler(s)
	return s
}

// RegisterRoutes registers the token service endpoints
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORSWithOrigins(s.allowOrigins))
		preflight := func(http.ResponseWriter, *http.Request) {}
		r.Options("/oauth/token", preflight)
		r.Options("/oauth/verify", preflight)
		r.Post("/oauth/token", s.handler.HandleToken)
		r.Post("/oauth/verify", s.handler.HandleVerify)
	})
}

// ExchangeCode runs the authorization_code grant and returns a fresh session. Persistence
// failures are logged and the unsaved profile is used instead.
func (s *Service) ExchangeCode(ctx context.Context, provider models.ProviderID, code string) (*models.UserSession, error) {
	tokens, profile, err := s.exchanger.ExchangeCode(ctx, provider, code, s.redirectURL)
	if err != nil {
		return nil, err
	}

	saved, err := s.store.SaveUser(ctx, *profile)
	if err != nil {
		logger.Warn("Failed to persist user, continuing with provider profile",
			logger.Provider(string(provider)), logger.UserID(profile.ID), zap.Error(err))
	}
	if saved.Provider == "" {
		saved.Provider = provider
	}
	if err := s.store.SaveTokens(ctx, *tokens, saved.ID, saved.Provider); err != nil {
		logger.Warn("Failed to persist tokens", logger.Provider(string(provider)), logger.UserID(saved.ID), zap.Error(err))
	}

	now := s.clock.Now().UnixMilli()
	return &models.UserSession{
		User:      saved,
		Tokens:    *tokens,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RefreshTokens runs the refresh_token grant for a known user and records the new tokens.
func (s *Service) RefreshTokens(ctx context.Context, provider models.ProviderID, refreshToken, userID string) (*models.TokenSet, error) {
	tokens, err := s.exchanger.Refresh(ctx, provider, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, autherr.ErrNotFound) {
			return nil, err
		}
		logger.Warn("Failed to load user for refreshed tokens", logger.Provider(string(provider)), logger.UserID(userID), zap.Error(err))
		return tokens, nil
	}

	owner := user.Provider
	if owner == "" {
		owner = provider
	}
	if err := s.store.SaveTokens(ctx, *tokens, user.ID, owner); err != nil {
		logger.Warn("Failed to persist refreshed tokens", logger.Provider(string(provider)), logger.UserID(userID), zap.Error(err))
	}
	return tokens, nil
}

// VerifyToken checks the access token against the provider's user-info endpoint.
func (s *Service) VerifyToken(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (bool, error) {
	return s.exchanger.Verify(ctx, provider, tokens)
}

// AuthCodeURL returns the authorization URL for provider with the configured redirect.
func (s *Service) AuthCodeURL(provider models.ProviderID, state string) (string, error) {
	p, err := s.exchanger.Registry().Get(provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state, s.redirectURL), nil
}
