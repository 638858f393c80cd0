package providers

import (
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/google"
)

var googleDefinition = definition{
	name:             "Google",
	authURL:          google.Endpoint.AuthURL,
	tokenURL:         google.Endpoint.TokenURL,
	userInfoURL:      "https://www.googleapis.com/oauth2/v3/userinfo",
	scopes:           []string{oidc.ScopeOpenID, "profile", "email"},
	responseEncoding: EncodingJSON,
	offlineAccess:    true,
	mapProfile:       mapGoogleProfile,
}

func mapGoogleProfile(raw map[string]any) models.UserProfile {
	return models.UserProfile{
		ID:       stringField(raw, "sub"),
		Name:     stringField(raw, "name"),
		Email:    stringField(raw, "email"),
		Avatar:   stringField(raw, "picture"),
		Provider: models.Google,
		RawData:  raw,
	}
}
