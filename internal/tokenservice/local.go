package tokenservice

import (
	"context"

	"github.com/brizzai/authlab/internal/auth"
	"github.com/brizzai/authlab/internal/auth/models"
)

// Local calls the token service in-process.
type Local struct {
	svc *auth.Service
}

func NewLocal(svc *auth.Service) *Local {
	return &Local{svc: svc}
}

// Exchange ignores state; the caller has already matched it against the stored value.
func (l *Local) Exchange(ctx context.Context, provider models.ProviderID, code, _ string) (*models.UserSession, error) {
	return l.svc.ExchangeCode(ctx, provider, code)
}

func (l *Local) Refresh(ctx context.Context, provider models.ProviderID, refreshToken, userID string) (*models.TokenSet, error) {
	return l.svc.RefreshTokens(ctx, provider, refreshToken, userID)
}

func (l *Local) Verify(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (bool, error) {
	return l.svc.VerifyToken(ctx, provider, tokens)
}
