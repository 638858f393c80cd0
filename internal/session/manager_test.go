package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/constants"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type fakeTokens struct {
	mu sync.Mutex

	refreshed    *models.TokenSet
	refreshErr   error
	refreshGate  chan struct{}
	refreshCalls int

	valid       bool
	verifyErr   error
	verifyCalls int
	verifiedTok string
}

func (f *fakeTokens) Refresh(_ context.Context, _ models.ProviderID, _, _ string) (*models.TokenSet, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	tokens := *f.refreshed
	return &tokens, nil
}

func (f *fakeTokens) Verify(_ context.Context, _ models.ProviderID, tokens *models.TokenSet) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	f.verifiedTok = tokens.AccessToken
	return f.valid, f.verifyErr
}

func (f *fakeTokens) calls() (refresh, verify int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.verifyCalls
}

type fixture struct {
	clock      *clockwork.FakeClock
	persistent *storage.MemoryScope
	volatile   *storage.MemoryScope
	tokens     *fakeTokens
	manager    *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:      clockwork.NewFakeClockAt(epoch),
		persistent: storage.NewMemoryScope(),
		volatile:   storage.NewMemoryScope(),
		tokens:     &fakeTokens{valid: true},
	}
	f.manager = NewManager(f.persistent, f.volatile, f.tokens, WithClock(f.clock))
	return f
}

// seed stores a session whose access token expires after ttl.
func (f *fixture) seed(t *testing.T, ttl time.Duration, refreshToken string) *models.UserSession {
	t.Helper()
	now := f.clock.Now()
	s := &models.UserSession{
		User: models.UserProfile{ID: "42", Name: "Ada", Email: "ada@example.com", Provider: models.GitHub},
		Tokens: models.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: refreshToken,
			ExpiresIn:    int64(ttl / time.Second),
			TokenType:    "Bearer",
			Scope:        "read:user",
			ExpiresAt:    now.Add(ttl).UnixMilli(),
		},
		CreatedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}
	require.NoError(t, f.manager.Save(s))
	return s
}

func freshTokens(now time.Time) *models.TokenSet {
	return &models.TokenSet{
		AccessToken: "access-2",
		ExpiresIn:   3600,
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(time.Hour).UnixMilli(),
	}
}

func TestManager_SaveLoadClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Nil(t, f.manager.Load(ctx))
	assert.False(t, f.manager.HasFastSession())

	saved := f.seed(t, time.Hour, "refresh-1")

	loaded := f.manager.Load(ctx)
	require.NotNil(t, loaded)
	assert.Equal(t, *saved, *loaded)
	assert.True(t, f.manager.HasFastSession())

	active := f.manager.GetActive()
	require.NotNil(t, active)
	assert.Equal(t, "42", active.UserID)
	assert.Equal(t, epoch.Add(10*time.Minute).UnixMilli(), active.ExpiresAt)

	require.NoError(t, f.manager.SaveState("state-1", models.GitHub))
	require.NoError(t, f.manager.Clear())
	require.NoError(t, f.manager.Clear())

	assert.Nil(t, f.manager.Load(ctx))
	assert.False(t, f.manager.HasFastSession())
	assert.False(t, f.manager.IsActiveValid())
	state, provider := f.manager.StoredState()
	assert.Empty(t, state)
	assert.Empty(t, provider)
}

func TestManager_ProfileInPersistentScope(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Hour, "")

	var profile models.UserProfile
	require.NoError(t, f.persistent.Get(constants.KeyUserProfile, &profile))
	assert.Equal(t, "42", profile.ID)

	var tokens models.StoredTokens
	assert.ErrorIs(t, f.persistent.Get(constants.KeyTokenData, &tokens), storage.ErrNotFound)
	require.NoError(t, f.volatile.Get(constants.KeyTokenData, &tokens))
	assert.Equal(t, "access-1", tokens.Tokens.AccessToken)
}

func TestManager_ActiveSessionLifetime(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.CreateActive("42")
	require.NoError(t, err)

	f.clock.Advance(9 * time.Minute)
	assert.True(t, f.manager.IsActiveValid())

	f.clock.Advance(2 * time.Minute)
	assert.False(t, f.manager.IsActiveValid())
	assert.Nil(t, f.manager.GetActive())

	var raw models.ActiveSession
	assert.ErrorIs(t, f.volatile.Get(constants.KeyClientSession, &raw), storage.ErrNotFound)
}

func TestManager_HasFullyValidSession(t *testing.T) {
	tests := []struct {
		name       string
		tokenTTL   time.Duration
		advance    time.Duration
		dropClient bool
		want       bool
	}{
		{name: "token and client session valid", tokenTTL: time.Hour, advance: time.Minute, want: true},
		{name: "client session expired", tokenTTL: time.Hour, advance: 11 * time.Minute, want: false},
		{name: "client session absent", tokenTTL: time.Hour, advance: time.Minute, dropClient: true, want: false},
		{name: "token expired", tokenTTL: 5 * time.Minute, advance: 6 * time.Minute, want: false},
		{name: "both expired", tokenTTL: 5 * time.Minute, advance: 11 * time.Minute, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, tt.tokenTTL, "")
			f.clock.Advance(tt.advance)
			if tt.dropClient {
				require.NoError(t, f.volatile.Delete(constants.KeyClientSession))
			}

			assert.Equal(t, tt.want, f.manager.HasFullyValidSession(context.Background()))
			f.manager.Wait()
		})
	}
}

func TestManager_LoadExpiredWithoutRefreshTokenClears(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Minute, "")
	f.clock.Advance(time.Minute)

	assert.Nil(t, f.manager.Load(context.Background()))
	assert.Nil(t, f.manager.Stored())
	refresh, _ := f.tokens.calls()
	assert.Zero(t, refresh)
}

func TestManager_LoadRefreshesInBackground(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Minute, "refresh-1")
	f.clock.Advance(2 * time.Minute)
	f.tokens.refreshed = freshTokens(f.clock.Now())

	assert.Nil(t, f.manager.Load(context.Background()))
	f.manager.Wait()

	loaded := f.manager.Load(context.Background())
	require.NotNil(t, loaded)
	assert.Equal(t, "access-2", loaded.Tokens.AccessToken)
	assert.Equal(t, "refresh-1", loaded.Tokens.RefreshToken, "refresh token carried over")
	assert.Equal(t, f.clock.Now().UnixMilli(), loaded.UpdatedAt)
	assert.Equal(t, epoch.UnixMilli(), loaded.CreatedAt)
	assert.True(t, f.manager.IsActiveValid())
}

func TestManager_LoadRefreshFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "rejected by token service",
			err:  &autherr.ProviderError{Kind: autherr.ErrRefreshFailed, Provider: "github", StatusCode: http.StatusBadRequest},
		},
		{
			name: "user unknown",
			err:  autherr.ErrNotFound,
		},
		{
			name: "network down",
			err:  &autherr.ProviderError{Kind: autherr.ErrRefreshFailed, Provider: "github", Err: autherr.ErrTransport},
		},
		{
			name: "token service unavailable",
			err:  &autherr.ProviderError{Kind: autherr.ErrRefreshFailed, Provider: "github", StatusCode: http.StatusBadGateway, Err: autherr.ErrTransport},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, time.Minute, "refresh-1")
			f.clock.Advance(2 * time.Minute)
			f.tokens.refreshErr = tt.err

			assert.Nil(t, f.manager.Load(context.Background()))
			f.manager.Wait()

			assert.False(t, f.manager.HasFastSession())
			assert.Nil(t, f.manager.Stored())
			assert.False(t, f.manager.IsActiveValid())
		})
	}
}

func TestManager_ConcurrentLoadsRefreshOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Minute, "refresh-1")
	f.clock.Advance(2 * time.Minute)
	f.tokens.refreshed = freshTokens(f.clock.Now())
	f.tokens.refreshGate = make(chan struct{})

	for i := 0; i < 5; i++ {
		assert.Nil(t, f.manager.Load(context.Background()))
	}
	close(f.tokens.refreshGate)
	f.manager.Wait()

	refresh, _ := f.tokens.calls()
	assert.Equal(t, 1, refresh)
	require.NotNil(t, f.manager.Load(context.Background()))
}

func TestManager_ClearWinsOverInFlightRefresh(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Minute, "refresh-1")
	f.clock.Advance(2 * time.Minute)
	f.tokens.refreshed = freshTokens(f.clock.Now())
	f.tokens.refreshGate = make(chan struct{})

	assert.Nil(t, f.manager.Load(context.Background()))
	require.Eventually(t, func() bool {
		refresh, _ := f.tokens.calls()
		return refresh == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, f.manager.Clear())
	close(f.tokens.refreshGate)
	f.manager.Wait()

	assert.Nil(t, f.manager.Stored())
	assert.False(t, f.manager.IsActiveValid())
}

func TestManager_FailedRefreshSparesNewerSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "rejected by token service",
			err:  &autherr.ProviderError{Kind: autherr.ErrRefreshFailed, Provider: "github", StatusCode: http.StatusBadRequest},
		},
		{
			name: "network down",
			err:  &autherr.ProviderError{Kind: autherr.ErrRefreshFailed, Provider: "github", Err: autherr.ErrTransport},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, time.Minute, "refresh-1")
			f.clock.Advance(2 * time.Minute)
			f.tokens.refreshErr = tt.err
			f.tokens.refreshGate = make(chan struct{})

			assert.Nil(t, f.manager.Load(context.Background()))
			require.Eventually(t, func() bool {
				refresh, _ := f.tokens.calls()
				return refresh == 1
			}, time.Second, time.Millisecond)

			require.NoError(t, f.manager.Clear())
			now := f.clock.Now()
			next := &models.UserSession{
				User: models.UserProfile{ID: "7", Name: "Grace", Provider: models.Google},
				Tokens: models.TokenSet{
					AccessToken:  "google-access",
					RefreshToken: "google-refresh",
					ExpiresIn:    3600,
					TokenType:    "Bearer",
					ExpiresAt:    now.Add(time.Hour).UnixMilli(),
				},
				CreatedAt: now.UnixMilli(),
				UpdatedAt: now.UnixMilli(),
			}
			require.NoError(t, f.manager.Save(next))

			close(f.tokens.refreshGate)
			f.manager.Wait()

			stored := f.manager.Stored()
			require.NotNil(t, stored)
			assert.Equal(t, *next, *stored)
			assert.True(t, f.manager.IsActiveValid())
		})
	}
}

func TestManager_ManualRefresh(t *testing.T) {
	t.Run("forces refresh of a valid token", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Hour, "refresh-1")
		f.tokens.refreshed = freshTokens(f.clock.Now())
		f.tokens.refreshed.RefreshToken = "refresh-2"

		s, err := f.manager.ManualRefresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-2", s.Tokens.AccessToken)
		assert.Equal(t, "refresh-2", s.Tokens.RefreshToken)
		assert.Equal(t, "refresh-2", f.manager.Stored().Tokens.RefreshToken)
	})

	t.Run("no refresh token", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Hour, "")

		_, err := f.manager.ManualRefresh(context.Background())
		assert.ErrorIs(t, err, autherr.ErrMissingParameters)
		assert.NotNil(t, f.manager.Stored())
	})

	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.ManualRefresh(context.Background())
		assert.ErrorIs(t, err, autherr.ErrNotFound)
	})

	t.Run("rejected refresh clears", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Hour, "refresh-1")
		f.tokens.refreshErr = &autherr.ProviderError{Kind: autherr.ErrRefreshFailed, StatusCode: http.StatusBadRequest}

		_, err := f.manager.ManualRefresh(context.Background())
		assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
		assert.Nil(t, f.manager.Stored())
	})
}

func TestManager_RestoreActive(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.manager.RestoreActive())

	f.seed(t, time.Hour, "")
	f.clock.Advance(11 * time.Minute)
	assert.False(t, f.manager.IsActiveValid())

	assert.True(t, f.manager.RestoreActive())
	assert.True(t, f.manager.IsActiveValid())

	f.clock.Advance(time.Hour)
	assert.False(t, f.manager.RestoreActive())
}

func TestManager_TimeUntilExpiration(t *testing.T) {
	f := newFixture(t)
	assert.Zero(t, f.manager.TimeUntilExpiration())

	f.seed(t, time.Hour, "")
	f.clock.Advance(15 * time.Minute)
	assert.Equal(t, 45*time.Minute, f.manager.TimeUntilExpiration())

	f.clock.Advance(time.Hour)
	assert.Zero(t, f.manager.TimeUntilExpiration())
}

func TestManager_LoginState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.SaveState("abc", models.Discord))

	state, provider := f.manager.StoredState()
	assert.Equal(t, "abc", state)
	assert.Equal(t, models.Discord, provider)

	require.NoError(t, f.manager.ClearState())
	state, provider = f.manager.StoredState()
	assert.Empty(t, state)
	assert.Empty(t, provider)
}

type failingScope struct{ storage.Scope }

func (failingScope) Set(string, any) error { return errors.New("disk full") }

func TestManager_SaveFailure(t *testing.T) {
	m := NewManager(failingScope{storage.NewMemoryScope()}, storage.NewMemoryScope(), &fakeTokens{})
	err := m.Save(&models.UserSession{User: models.UserProfile{ID: "1"}})
	assert.ErrorContains(t, err, "disk full")
}

func TestFormatExpiry(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "Expired"},
		{in: -time.Second, want: "Expired"},
		{in: time.Hour + 5*time.Minute + 30*time.Second, want: "1h 5m"},
		{in: 4*time.Minute + 10*time.Second, want: "4m 10s"},
		{in: 9*time.Second + 400*time.Millisecond, want: "9s"},
		{in: 500 * time.Millisecond, want: "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatExpiry(tt.in))
		})
	}
}
