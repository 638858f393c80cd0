package tokenservice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedService struct {
	status   int
	body     string
	lastBody map[string]any
}

func (c *cannedService) server(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	respond := func(w http.ResponseWriter, req *http.Request) {
		c.lastBody = nil
		_ = json.NewDecoder(req.Body).Decode(&c.lastBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(c.status)
		_, _ = io.WriteString(w, c.body)
	}
	r.Post("/oauth/token", respond)
	r.Post("/oauth/verify", respond)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemote_Exchange(t *testing.T) {
	svc := &cannedService{
		status: http.StatusOK,
		body: `{"user":{"id":"7","name":"Ada","email":"ada@example.com","provider":"github"},
			"tokens":{"access_token":"tok123","expires_in":3600,"token_type":"Bearer","scope":"read:user","expires_at":99},
			"created_at":1,"updated_at":1}`,
	}
	remote := NewRemote(nil, svc.server(t).URL, time.Second)

	session, err := remote.Exchange(context.Background(), models.GitHub, "abc", "state-1")
	require.NoError(t, err)

	want := &models.UserSession{
		User:      models.UserProfile{ID: "7", Name: "Ada", Email: "ada@example.com", Provider: models.GitHub},
		Tokens:    models.TokenSet{AccessToken: "tok123", ExpiresIn: 3600, TokenType: "Bearer", Scope: "read:user", ExpiresAt: 99},
		CreatedAt: 1,
		UpdatedAt: 1,
	}
	assert.Empty(t, cmp.Diff(want, session))
	assert.Equal(t, map[string]any{"code": "abc", "provider": "github", "state": "state-1"}, svc.lastBody)
}

func TestRemote_ExchangeErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   error
		wantDetail string
	}{
		{
			name:       "provider rejected code",
			status:     http.StatusBadRequest,
			body:       `{"error":"Token exchange failed","details":"bad_verification_code"}`,
			wantKind:   autherr.ErrTokenExchangeFailed,
			wantDetail: "bad_verification_code",
		},
		{
			name:       "invalid provider",
			status:     http.StatusBadRequest,
			body:       `{"error":"Invalid provider"}`,
			wantKind:   autherr.ErrInvalidProvider,
			wantDetail: "Invalid provider",
		},
		{
			name:       "profile fetch failed",
			status:     http.StatusBadRequest,
			body:       `{"error":"Failed to fetch user profile","details":"401 Unauthorized"}`,
			wantKind:   autherr.ErrProfileFetchFailed,
			wantDetail: "401 Unauthorized",
		},
		{
			name:       "internal error",
			status:     http.StatusInternalServerError,
			body:       `{"error":"Internal server error"}`,
			wantKind:   autherr.ErrTransport,
			wantDetail: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &cannedService{status: tt.status, body: tt.body}
			remote := NewRemote(nil, svc.server(t).URL, time.Second)

			_, err := remote.Exchange(context.Background(), models.GitHub, "abc", "s")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantDetail, autherr.Detail(err))
			assert.Equal(t, tt.status, autherr.StatusCode(err))
		})
	}
}

func TestRemote_Refresh(t *testing.T) {
	svc := &cannedService{
		status: http.StatusOK,
		body:   `{"tokens":{"access_token":"new","expires_in":3600,"token_type":"Bearer","scope":"","expires_at":5},"success":true}`,
	}
	remote := NewRemote(nil, svc.server(t).URL, time.Second)

	tokens, err := remote.Refresh(context.Background(), models.Google, "r-1", "42")
	require.NoError(t, err)
	assert.Equal(t, "new", tokens.AccessToken)
	assert.Equal(t, "r-1", tokens.RefreshToken)
	assert.Equal(t, map[string]any{"provider": "google", "refresh_token": "r-1", "user_id": "42"}, svc.lastBody)
}

func TestRemote_RefreshErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantKind     error
		wantTerminal bool
	}{
		{
			name:         "rejected",
			status:       http.StatusBadRequest,
			body:         `{"error":"Refresh token failed","details":"invalid_grant"}`,
			wantKind:     autherr.ErrRefreshFailed,
			wantTerminal: true,
		},
		{
			name:         "unknown user",
			status:       http.StatusNotFound,
			body:         `{"error":"User not found for token refresh"}`,
			wantKind:     autherr.ErrNotFound,
			wantTerminal: true,
		},
		{
			name:         "server failure",
			status:       http.StatusInternalServerError,
			body:         `{"error":"Internal server error"}`,
			wantKind:     autherr.ErrTransport,
			wantTerminal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &cannedService{status: tt.status, body: tt.body}
			remote := NewRemote(nil, svc.server(t).URL, time.Second)

			_, err := remote.Refresh(context.Background(), models.Google, "r-1", "42")
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantTerminal, autherr.IsTerminal(err))
		})
	}
}

func TestRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	remote := NewRemote(nil, url, time.Second)

	_, err := remote.Refresh(context.Background(), models.Discord, "r", "1")
	assert.ErrorIs(t, err, autherr.ErrTransport)
	assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
	assert.False(t, autherr.IsTerminal(err))

	_, err = remote.Verify(context.Background(), models.Discord, &models.TokenSet{AccessToken: "a", TokenType: "Bearer"})
	assert.ErrorIs(t, err, autherr.ErrTransport)
}

func TestRemote_Verify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr error
	}{
		{name: "valid", status: http.StatusOK, body: `{"valid":true}`, want: true},
		{name: "invalid", status: http.StatusUnauthorized, body: `{"valid":false}`, want: false},
		{name: "bad provider", status: http.StatusBadRequest, body: `{"error":"Invalid provider"}`, wantErr: autherr.ErrInvalidProvider},
		{name: "server failure", status: http.StatusInternalServerError, body: `{"error":"Internal server error"}`, wantErr: autherr.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &cannedService{status: tt.status, body: tt.body}
			remote := NewRemote(nil, svc.server(t).URL, time.Second)

			got, err := remote.Verify(context.Background(), models.GitHub, &models.TokenSet{AccessToken: "a", TokenType: "Bearer"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, map[string]any{"access_token": "a", "token_type": "Bearer", "provider": "github"}, svc.lastBody)
		})
	}
}
