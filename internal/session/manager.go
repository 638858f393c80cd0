// Package session keeps the user's provider session and the short-lived client session,
// and decides whether the user is currently authenticated.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/constants"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSessionCleared is returned by a refresh that finished after the session was cleared.
var ErrSessionCleared = errors.New("session cleared during refresh")

// TokenService is the remote capability the session layer refreshes and verifies through.
type TokenService interface {
	Refresh(ctx context.Context, provider models.ProviderID, refreshToken, userID string) (*models.TokenSet, error)
	Verify(ctx context.Context, provider models.ProviderID, tokens *models.TokenSet) (bool, error)
}

// Manager stores the profile in the persistent scope and tokens, the client session and
// login state in the session scope.
type Manager struct {
	persistent storage.Scope
	volatile   storage.Scope
	tokens     TokenService
	clock      clockwork.Clock
	activeTTL  time.Duration

	mu         sync.Mutex
	generation atomic.Uint64
	group      singleflight.Group
	background conc.WaitGroup
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithActiveDuration sets the lifetime of the client session.
func WithActiveDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.activeTTL = d
		}
	}
}

func NewManager(persistent, volatile storage.Scope, tokens TokenService, opts ...Option) *Manager {
	m := &Manager{
		persistent: persistent,
		volatile:   volatile,
		tokens:     tokens,
		clock:      clockwork.NewRealClock(),
		activeTTL:  constants.ActiveSessionDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Clock returns the clock the manager measures expiry with.
func (m *Manager) Clock() clockwork.Clock {
	return m.clock
}

// Save persists the session and starts a fresh client session for its user. Refreshes
// still in flight for a previous session no longer touch storage.
func (m *Manager) Save(s *models.UserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation.Add(1)
	return m.save(s)
}

func (m *Manager) save(s *models.UserSession) error {
	if err := m.persistent.Set(constants.KeyUserProfile, s.User); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	if err := m.volatile.Set(constants.KeyTokenData, models.StoredTokens{
		Tokens:    s.Tokens,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	_, err := m.createActive(s.User.ID)
	return err
}

// Load returns the stored session if its tokens are still valid. An expired session with a
// refresh token is refreshed in the background and only becomes visible to a later Load;
// a failed refresh clears it, as does expiry without a refresh token. Either way this call
// returns nil.
func (m *Manager) Load(ctx context.Context) *models.UserSession {
	s := m.Stored()
	if s == nil {
		return nil
	}
	if !s.Tokens.IsExpired(m.clock.Now()) {
		return s
	}

	if s.Tokens.RefreshToken == "" {
		logger.Info("Session expired without refresh token, clearing",
			logger.Provider(string(s.User.Provider)), logger.UserID(s.User.ID))
		m.clearQuietly()
		return nil
	}

	gen := m.generation.Load()
	bg := context.WithoutCancel(ctx)
	m.background.Go(func() {
		_, err := m.refresh(bg, s, false)
		if err == nil || errors.Is(err, ErrSessionCleared) {
			return
		}
		logger.Warn("Background token refresh failed, clearing session",
			logger.Provider(string(s.User.Provider)), logger.UserID(s.User.ID), zap.Error(err))
		m.clearIfCurrent(gen)
	})
	return nil
}

// Wait blocks until background refreshes started by Load have finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Stored returns whatever session is in storage, expired or not, without side effects.
func (m *Manager) Stored() *models.UserSession {
	var profile models.UserProfile
	if err := m.persistent.Get(constants.KeyUserProfile, &profile); err != nil {
		logStorageError("profile", err)
		return nil
	}
	var stored models.StoredTokens
	if err := m.volatile.Get(constants.KeyTokenData, &stored); err != nil {
		logStorageError("tokens", err)
		return nil
	}
	return &models.UserSession{
		User:      profile,
		Tokens:    stored.Tokens,
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}
}

// HasFastSession checks storage only: a profile and unexpired tokens are present.
func (m *Manager) HasFastSession() bool {
	s := m.Stored()
	return s != nil && !s.Tokens.IsExpired(m.clock.Now())
}

// HasFullyValidSession is true when Load yields a session with unexpired tokens and the
// client session is valid.
func (m *Manager) HasFullyValidSession(ctx context.Context) bool {
	s := m.Load(ctx)
	if s == nil || s.Tokens.IsExpired(m.clock.Now()) {
		return false
	}
	return m.IsActiveValid()
}

// ManualRefresh exchanges the stored refresh token now, whether or not the tokens have expired.
// A rejected refresh clears the session.
func (m *Manager) ManualRefresh(ctx context.Context) (*models.UserSession, error) {
	s := m.Stored()
	if s == nil {
		return nil, fmt.Errorf("no stored session: %w", autherr.ErrNotFound)
	}
	if s.Tokens.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token available", autherr.ErrMissingParameters)
	}
	return m.refresh(ctx, s, true)
}

// refresh runs one refresh per refresh token at a time. Unless forced it returns the
// stored session untouched when someone else already refreshed it.
func (m *Manager) refresh(ctx context.Context, s *models.UserSession, force bool) (*models.UserSession, error) {
	gen := m.generation.Load()

	v, err, _ := m.group.Do(s.Tokens.RefreshToken, func() (any, error) {
		if !force {
			if current := m.Stored(); current != nil && !current.Tokens.IsExpired(m.clock.Now()) {
				return current, nil
			}
		}

		tokens, err := m.tokens.Refresh(ctx, s.User.Provider, s.Tokens.RefreshToken, s.User.ID)
		if err != nil {
			if !autherr.IsTerminal(err) {
				return nil, err
			}
			if !m.clearIfCurrent(gen) {
				return nil, ErrSessionCleared
			}
			logger.Warn("Refresh rejected, session cleared",
				logger.Provider(string(s.User.Provider)), logger.UserID(s.User.ID), zap.Error(err))
			return nil, err
		}
		if tokens.RefreshToken == "" {
			tokens.RefreshToken = s.Tokens.RefreshToken
		}

		updated := *s
		updated.Tokens = *tokens
		updated.UpdatedAt = m.clock.Now().UnixMilli()

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.generation.Load() != gen {
			return nil, ErrSessionCleared
		}
		if err := m.save(&updated); err != nil {
			return nil, err
		}
		logger.Info("Tokens refreshed", logger.Provider(string(s.User.Provider)), logger.UserID(s.User.ID))
		return &updated, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.UserSession), nil
}

// Clear removes the profile, tokens, client session and pending login state.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked()
}

// clearIfCurrent clears the session unless it was cleared or replaced after gen was read.
func (m *Manager) clearIfCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation.Load() != gen {
		return false
	}
	if err := m.clearLocked(); err != nil {
		logger.Error("Failed to clear session", zap.Error(err))
	}
	return true
}

func (m *Manager) clearLocked() error {
	m.generation.Add(1)
	var errs []error
	errs = append(errs, m.volatile.Delete(
		constants.KeyTokenData,
		constants.KeyClientSession,
		constants.KeyOAuthState,
		constants.KeyOAuthProvider,
	))
	errs = append(errs, m.persistent.Delete(constants.KeyUserProfile))
	return errors.Join(errs...)
}

func (m *Manager) clearQuietly() {
	if err := m.Clear(); err != nil {
		logger.Error("Failed to clear session", zap.Error(err))
	}
}

// CreateActive starts a client session for userID, replacing any previous one.
func (m *Manager) CreateActive(userID string) (*models.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createActive(userID)
}

func (m *Manager) createActive(userID string) (*models.ActiveSession, error) {
	now := m.clock.Now()
	active := &models.ActiveSession{
		IsValid:   true,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(m.activeTTL).UnixMilli(),
		UserID:    userID,
	}
	if err := m.volatile.Set(constants.KeyClientSession, active); err != nil {
		return nil, fmt.Errorf("failed to store client session: %w", err)
	}
	return active, nil
}

// GetActive returns the client session, dropping it once it has expired.
func (m *Manager) GetActive() *models.ActiveSession {
	var active models.ActiveSession
	if err := m.volatile.Get(constants.KeyClientSession, &active); err != nil {
		logStorageError("client session", err)
		return nil
	}
	if !active.IsValid || active.Expired(m.clock.Now()) {
		if err := m.volatile.Delete(constants.KeyClientSession); err != nil {
			logger.Error("Failed to drop expired client session", zap.Error(err))
		}
		return nil
	}
	return &active
}

func (m *Manager) IsActiveValid() bool {
	return m.GetActive() != nil
}

// RestoreActive starts a new client session when the stored tokens are still valid.
func (m *Manager) RestoreActive() bool {
	s := m.Stored()
	if s == nil || s.Tokens.IsExpired(m.clock.Now()) {
		return false
	}
	if _, err := m.CreateActive(s.User.ID); err != nil {
		logger.Error("Failed to restore client session", zap.Error(err))
		return false
	}
	return true
}

// TimeUntilExpiration is how long the stored access token has left, never negative.
func (m *Manager) TimeUntilExpiration() time.Duration {
	s := m.Stored()
	if s == nil {
		return 0
	}
	d := s.Tokens.ExpiresTime().Sub(m.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// SaveState remembers the CSRF state and provider of a login in progress.
func (m *Manager) SaveState(state string, provider models.ProviderID) error {
	if err := m.volatile.Set(constants.KeyOAuthState, state); err != nil {
		return err
	}
	return m.volatile.Set(constants.KeyOAuthProvider, string(provider))
}

// StoredState returns the pending login state. Missing values come back empty.
func (m *Manager) StoredState() (state string, provider models.ProviderID) {
	var p string
	if err := m.volatile.Get(constants.KeyOAuthState, &state); err != nil {
		logStorageError("oauth state", err)
	}
	if err := m.volatile.Get(constants.KeyOAuthProvider, &p); err != nil {
		logStorageError("oauth provider", err)
	}
	return state, models.ProviderID(p)
}

func (m *Manager) ClearState() error {
	return m.volatile.Delete(constants.KeyOAuthState, constants.KeyOAuthProvider)
}

func logStorageError(what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	logger.Warn("Failed to read session storage", zap.String("key", what), zap.Error(err))
}
