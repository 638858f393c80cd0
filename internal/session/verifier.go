package session

import (
	"context"
	"errors"
	"time"

	"github.com/brizzai/authlab/internal/auth/constants"
	"github.com/brizzai/authlab/internal/logger"
	"go.uber.org/zap"
)

var (
	ErrNoSession    = errors.New("no stored session")
	ErrTokenInvalid = errors.New("provider rejected the access token")
)

// Status is the outcome of one verification. Err is kept for diagnostics only.
type Status struct {
	Verified  bool
	Method    string
	Expiry    time.Time
	Err       error
	CheckedAt time.Time
}

// Verifier answers whether the user is authenticated right now, preferring the local
// client session and falling back to refresh plus a provider liveness check.
type Verifier struct {
	manager *Manager
}

func NewVerifier(m *Manager) *Verifier {
	return &Verifier{manager: m}
}

// Verify never fails: every error collapses into an unverified Status.
func (v *Verifier) Verify(ctx context.Context) Status {
	m := v.manager
	now := m.clock.Now()

	// Same answer as HasFullyValidSession without kicking off a background refresh;
	// an expired token is refreshed synchronously below.
	if m.HasFastSession() && m.IsActiveValid() {
		st := Status{Verified: true, Method: constants.MethodClientSession, CheckedAt: now}
		if active := m.GetActive(); active != nil {
			st.Expiry = time.UnixMilli(active.ExpiresAt)
		}
		return st
	}

	s := m.Stored()
	if s == nil {
		return v.unverified(now, ErrNoSession)
	}

	if s.Tokens.IsExpired(now) {
		if s.Tokens.RefreshToken == "" {
			m.clearQuietly()
			return v.unverified(now, ErrNoSession)
		}
		refreshed, err := m.refresh(ctx, s, false)
		if err != nil {
			return v.unverified(now, err)
		}
		s = refreshed
	}

	ok, err := m.tokens.Verify(ctx, s.User.Provider, &s.Tokens)
	if err != nil {
		return v.unverified(now, err)
	}
	if !ok {
		return v.unverified(now, ErrTokenInvalid)
	}

	active, err := m.CreateActive(s.User.ID)
	if err != nil {
		return v.unverified(now, err)
	}
	logger.Debug("Session verified with provider", logger.Provider(string(s.User.Provider)), logger.UserID(s.User.ID))
	return Status{
		Verified:  true,
		Method:    constants.MethodProviderCheck,
		Expiry:    time.UnixMilli(active.ExpiresAt),
		CheckedAt: now,
	}
}

func (v *Verifier) unverified(now time.Time, err error) Status {
	if !errors.Is(err, ErrNoSession) {
		logger.Warn("Session verification failed", zap.Error(err))
	}
	return Status{Method: constants.MethodNone, Err: err, CheckedAt: now}
}
