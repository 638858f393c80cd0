// Package tokenservice gives the session layer access to the token exchange service,
// either over HTTP or in-process.
package tokenservice

import (
	"context"

	"github.com/brizzai/authlab/internal/auth/models"
)

// Service is the client view of POST /oauth/token and POST /oauth/verify.
type Service interface {
	// Exchange redeems an authorization code for a full session.
	Exchange(ctx context.Context, provider models.ProviderID, code, state string) (*models.UserSession, error)
	Refresh(ctx context.Context, provider models.ProviderID, refreshToken, userID string) (*models.TokenSet, error)
	Verify(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (bool, error)
}
