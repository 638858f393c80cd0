package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/brizzai/authlab/internal/config"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// fakeProvider is a minimal token and user-info endpoint pair.
type fakeProvider struct {
	mu       sync.Mutex
	forms    []url.Values
	headers  []http.Header
	token    func(w http.ResponseWriter, form url.Values)
	userInfo func(w http.ResponseWriter, r *http.Request)
	emails   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.forms = append(f.forms, r.PostForm)
		f.headers = append(f.headers, r.Header.Clone())
		f.mu.Unlock()
		f.token(w, r.PostForm)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.headers = append(f.headers, r.Header.Clone())
		f.mu.Unlock()
		f.userInfo(w, r)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		f.emails(w, r)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T, f *fakeProvider) (*Client, *clockwork.FakeClock, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	endpoints := config.ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/user",
		EmailsURL:    srv.URL + "/user/emails",
	}
	noCreds := endpoints
	noCreds.ClientSecret = ""

	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"github":  endpoints,
		"discord": endpoints,
		"google":  noCreds,
	}}

	clock := clockwork.NewFakeClockAt(epoch)
	c := NewClient(providers.NewRegistry(cfg), WithHTTPClient(srv.Client()), WithClock(clock))
	return c, clock, srv
}

func TestExchangeCode_GitHubFormEncoded(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{name: "labelled as form", contentType: "application/x-www-form-urlencoded; charset=utf-8"},
		{name: "mislabelled as json", contentType: "application/json"},
		{name: "no content type", contentType: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{
				token: func(w http.ResponseWriter, form url.Values) {
					if tt.contentType != "" {
						w.Header().Set("Content-Type", tt.contentType)
					} else {
						w.Header()["Content-Type"] = nil
					}
					_, _ = io.WriteString(w, "access_token=tok123&token_type=bearer")
				},
				userInfo: func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusOK, `{"id":583231,"login":"octocat","name":null,"email":null,"avatar_url":"https://a/o.png"}`)
				},
				emails: func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusOK, `[{"email":"a@x.com","primary":false},{"email":"b@x.com","primary":true}]`)
				},
			}
			c, clock, _ := newTestClient(t, f)

			tokens, profile, err := c.ExchangeCode(context.Background(), models.GitHub, "abc", "http://localhost:3000/callback")
			require.NoError(t, err)

			assert.Equal(t, "tok123", tokens.AccessToken)
			assert.Equal(t, "Bearer", tokens.TokenType)
			assert.Equal(t, int64(3600), tokens.ExpiresIn)
			assert.Equal(t, epoch.Add(time.Hour).UnixMilli(), tokens.ExpiresAt)
			assert.Equal(t, "user:email read:user", tokens.Scope)
			assert.Empty(t, tokens.RefreshToken)
			assert.False(t, tokens.IsExpired(clock.Now()))

			assert.Equal(t, "583231", profile.ID)
			assert.Equal(t, "octocat", profile.Name)
			assert.Equal(t, "b@x.com", profile.Email)
			assert.Equal(t, models.GitHub, profile.Provider)

			require.Len(t, f.forms, 1)
			form := f.forms[0]
			assert.Equal(t, "client-id", form.Get("client_id"))
			assert.Equal(t, "client-secret", form.Get("client_secret"))
			assert.Equal(t, "abc", form.Get("code"))
			assert.Equal(t, "authorization_code", form.Get("grant_type"))
			assert.Equal(t, "http://localhost:3000/callback", form.Get("redirect_uri"))

			for _, h := range f.headers {
				assert.Equal(t, "OAuth-Learning-System/1.0", h.Get("User-Agent"))
				assert.Equal(t, "application/json", h.Get("Accept"))
			}
			assert.Equal(t, "Bearer tok123", f.headers[len(f.headers)-1].Get("Authorization"))
		})
	}
}

func TestExchangeCode_JSON(t *testing.T) {
	f := &fakeProvider{
		token: func(w http.ResponseWriter, form url.Values) {
			writeJSON(w, http.StatusOK, `{"access_token":"d-tok","refresh_token":"d-ref","expires_in":604800,"token_type":"Bearer","scope":"identify email"}`)
		},
		userInfo: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"id":"80351110224678912","username":"nelly","global_name":"Nelly","email":"n@x.com","avatar":"abc"}`)
		},
	}
	c, clock, _ := newTestClient(t, f)

	tokens, profile, err := c.ExchangeCode(context.Background(), models.Discord, "code", "http://localhost:3000/callback")
	require.NoError(t, err)

	assert.Equal(t, "d-ref", tokens.RefreshToken)
	assert.Equal(t, int64(604800), tokens.ExpiresIn)
	assert.Equal(t, "identify email", tokens.Scope)
	assert.Equal(t, epoch.Add(604800*time.Second).UnixMilli(), tokens.ExpiresAt)
	assert.Equal(t, "Nelly", profile.Name)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/80351110224678912/abc.png", profile.Avatar)

	clock.Advance(604800*time.Second - time.Millisecond)
	assert.False(t, tokens.IsExpired(clock.Now()))
	clock.Advance(time.Millisecond)
	assert.True(t, tokens.IsExpired(clock.Now()))
}

func TestExchangeCode_Failures(t *testing.T) {
	tests := []struct {
		name       string
		provider   models.ProviderID
		code       string
		token      func(w http.ResponseWriter, form url.Values)
		userInfo   func(w http.ResponseWriter, r *http.Request)
		wantKind   error
		wantStatus int
		wantBody   string
	}{
		{
			name:     "unknown provider",
			provider: "gitlab",
			code:     "abc",
			wantKind: autherr.ErrInvalidProvider,
		},
		{
			name:     "missing code",
			provider: models.GitHub,
			wantKind: autherr.ErrMissingParameters,
		},
		{
			name:     "missing credentials",
			provider: models.Google,
			code:     "abc",
			wantKind: autherr.ErrMissingCredentials,
		},
		{
			name:     "token endpoint rejects",
			provider: models.Discord,
			code:     "abc",
			token: func(w http.ResponseWriter, form url.Values) {
				writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant"}`)
			},
			wantKind:   autherr.ErrTokenExchangeFailed,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid_grant"}`,
		},
		{
			name:     "malformed token body",
			provider: models.Discord,
			code:     "abc",
			token: func(w http.ResponseWriter, form url.Values) {
				writeJSON(w, http.StatusOK, `{"token_type":"Bearer"}`)
			},
			wantKind: autherr.ErrParseFailed,
		},
		{
			name:     "user info rejects",
			provider: models.Discord,
			code:     "abc",
			token: func(w http.ResponseWriter, form url.Values) {
				writeJSON(w, http.StatusOK, `{"access_token":"tok","token_type":"Bearer"}`)
			},
			userInfo: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, `{"message":"401: Unauthorized"}`)
			},
			wantKind:   autherr.ErrProfileFetchFailed,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"message":"401: Unauthorized"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestClient(t, &fakeProvider{token: tt.token, userInfo: tt.userInfo})

			tokens, profile, err := c.ExchangeCode(context.Background(), tt.provider, tt.code, "http://localhost:3000/callback")
			require.Error(t, err)
			assert.Nil(t, tokens)
			assert.Nil(t, profile)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantStatus, autherr.StatusCode(err))
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, autherr.Detail(err))
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		wantRefresh string
		wantExpires time.Duration
	}{
		{
			name:        "keeps prior refresh token",
			response:    `{"access_token":"new","expires_in":7200,"token_type":"bearer"}`,
			wantRefresh: "old-refresh",
			wantExpires: 2 * time.Hour,
		},
		{
			name:        "rotates refresh token",
			response:    `{"access_token":"new","refresh_token":"rotated","token_type":"Bearer"}`,
			wantRefresh: "rotated",
			wantExpires: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{token: func(w http.ResponseWriter, form url.Values) {
				writeJSON(w, http.StatusOK, tt.response)
			}}
			c, clock, _ := newTestClient(t, f)

			tokens, err := c.Refresh(context.Background(), models.Discord, "old-refresh")
			require.NoError(t, err)

			assert.Equal(t, "new", tokens.AccessToken)
			assert.Equal(t, "Bearer", tokens.TokenType)
			assert.Equal(t, tt.wantRefresh, tokens.RefreshToken)
			assert.Equal(t, epoch.Add(tt.wantExpires).UnixMilli(), tokens.ExpiresAt)
			assert.False(t, tokens.IsExpired(clock.Now()))

			require.Len(t, f.forms, 1)
			assert.Equal(t, "refresh_token", f.forms[0].Get("grant_type"))
			assert.Equal(t, "old-refresh", f.forms[0].Get("refresh_token"))
			assert.Equal(t, "client-id", f.forms[0].Get("client_id"))
		})
	}
}

func TestRefresh_Failures(t *testing.T) {
	t.Run("rejected is terminal", func(t *testing.T) {
		c, _, _ := newTestClient(t, &fakeProvider{token: func(w http.ResponseWriter, form url.Values) {
			writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant"}`)
		}})

		_, err := c.Refresh(context.Background(), models.Discord, "old")
		assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
		assert.True(t, autherr.IsTerminal(err))
	})

	t.Run("transport failure is not terminal", func(t *testing.T) {
		c, _, srv := newTestClient(t, &fakeProvider{})
		srv.Close()

		_, err := c.Refresh(context.Background(), models.Discord, "old")
		assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
		assert.ErrorIs(t, err, autherr.ErrTransport)
		assert.False(t, autherr.IsTerminal(err))
	})

	t.Run("missing refresh token", func(t *testing.T) {
		c, _, _ := newTestClient(t, &fakeProvider{})
		_, err := c.Refresh(context.Background(), models.Discord, "")
		assert.ErrorIs(t, err, autherr.ErrMissingParameters)
	})
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "ok", status: http.StatusOK, want: true},
		{name: "no content", status: http.StatusNoContent, want: true},
		{name: "unauthorized", status: http.StatusUnauthorized, want: false},
		{name: "server error", status: http.StatusInternalServerError, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			f := &fakeProvider{userInfo: func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}}
			c, _, _ := newTestClient(t, f)

			ok, err := c.Verify(context.Background(), models.GitHub, &models.TokenSet{AccessToken: "tok", TokenType: "Bearer"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, "Bearer tok", gotAuth)
		})
	}
}

func TestVerify_TransportError(t *testing.T) {
	c, _, srv := newTestClient(t, &fakeProvider{})
	srv.Close()

	ok, err := c.Verify(context.Background(), models.GitHub, &models.TokenSet{AccessToken: "tok", TokenType: "Bearer"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, autherr.ErrTransport)
}

func TestFetchProfile_KeepsNumbers(t *testing.T) {
	f := &fakeProvider{userInfo: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":12345678901234567}`)
	}}
	c, _, _ := newTestClient(t, f)

	raw, err := c.FetchProfile(context.Background(), models.GitHub, &models.TokenSet{AccessToken: "tok", TokenType: "Bearer"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567"), raw["id"])
}
