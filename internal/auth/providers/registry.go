package providers

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/config"
	"github.com/brizzai/authlab/internal/logger"
	"golang.org/x/oauth2"
)

// Encoding is the body format a token endpoint answers with on success
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingForm Encoding = "form"
)

// ProviderConfig is an immutable snapshot of one provider's endpoints, scopes and credentials.
type ProviderConfig struct {
	ID               models.ProviderID
	Name             string
	AuthURL          string
	TokenURL         string
	UserInfoURL      string
	EmailsURL        string
	Scopes           []string
	ResponseEncoding Encoding
	OfflineAccess    bool
	ClientID         string

	clientSecret string
}

// HasCredentials reports whether grants against this provider can succeed at all.
func (p ProviderConfig) HasCredentials() bool {
	return p.ClientID != "" && p.clientSecret != ""
}

// ScopeString joins the required scopes the way token responses report them.
func (p ProviderConfig) ScopeString() string {
	return strings.Join(p.Scopes, " ")
}

// OAuth2Config builds a fresh oauth2 config. Credentials always travel in the form body.
func (p ProviderConfig) OAuth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      slices.Clone(p.Scopes),
	}
}

// AuthCodeURL returns the URL the user is sent to in order to grant access.
func (p ProviderConfig) AuthCodeURL(state, redirectURL string) string {
	var opts []oauth2.AuthCodeOption
	if p.OfflineAccess {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return p.OAuth2Config(redirectURL).AuthCodeURL(state, opts...)
}

// NormalizeProfile maps a raw user-info payload onto the common profile shape.
func (p ProviderConfig) NormalizeProfile(raw map[string]any) (models.UserProfile, error) {
	return NormalizeProfile(p.ID, raw)
}

// Registry is the lookup table of supported providers, built once at startup.
type Registry struct {
	providers map[models.ProviderID]ProviderConfig
}

// NewRegistry builds the registry from static definitions plus configured credentials
// and endpoint overrides. Missing credentials are logged, not fatal.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{providers: make(map[models.ProviderID]ProviderConfig, len(definitions))}

	for id, def := range definitions {
		var pc config.ProviderConfig
		if cfg != nil {
			pc = cfg.Providers[string(id)]
		}

		p := ProviderConfig{
			ID:               id,
			Name:             def.name,
			AuthURL:          orDefault(pc.AuthURL, def.authURL),
			TokenURL:         orDefault(pc.TokenURL, def.tokenURL),
			UserInfoURL:      orDefault(pc.UserInfoURL, def.userInfoURL),
			EmailsURL:        orDefault(pc.EmailsURL, def.emailsURL),
			Scopes:           slices.Clone(def.scopes),
			ResponseEncoding: def.responseEncoding,
			OfflineAccess:    def.offlineAccess,
			ClientID:         pc.ClientID,
			clientSecret:     pc.ClientSecret,
		}
		if !p.HasCredentials() {
			logger.Warn("Provider credentials not configured, exchanges will fail", logger.Provider(string(id)))
		}
		r.providers[id] = p
	}

	return r
}

// Get returns a copy of the provider's configuration, or ErrInvalidProvider.
func (r *Registry) Get(id models.ProviderID) (ProviderConfig, error) {
	p, ok := r.providers[id]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %q", autherr.ErrInvalidProvider, id)
	}
	p.Scopes = slices.Clone(p.Scopes)
	return p, nil
}

// Lookup is Get for raw, unvalidated provider strings.
func (r *Registry) Lookup(id string) (ProviderConfig, error) {
	return r.Get(models.ProviderID(id))
}

// List returns every provider in display order.
func (r *Registry) List() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(models.Providers))
	for _, id := range models.Providers {
		if p, err := r.Get(id); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeProfile maps a raw user-info payload for provider onto the common profile shape.
// It is pure: the same payload always yields the same profile.
func NormalizeProfile(provider models.ProviderID, raw map[string]any) (models.UserProfile, error) {
	def, ok := definitions[provider]
	if !ok {
		return models.UserProfile{}, fmt.Errorf("%w: %q", autherr.ErrInvalidProvider, provider)
	}
	return def.mapProfile(raw), nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// stringField reads a scalar field as a string. Numbers keep their integer form.
func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
