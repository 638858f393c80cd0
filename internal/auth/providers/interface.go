package providers

import (
	"github.com/brizzai/authlab/internal/auth/models"
)

// profileMapper turns a provider's raw user-info payload into the common profile shape
type profileMapper func(raw map[string]any) models.UserProfile

// definition is the static, credential-free description of a provider
type definition struct {
	name             string
	authURL          string
	tokenURL         string
	userInfoURL      string
	emailsURL        string
	scopes           []string
	responseEncoding Encoding
	offlineAccess    bool
	mapProfile       profileMapper
}

var definitions = map[models.ProviderID]definition{
	models.Discord: discordDefinition,
	models.GitHub:  githubDefinition,
	models.Google:  googleDefinition,
}
