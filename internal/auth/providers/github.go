package providers

import (
	"github.com/brizzai/authlab/internal/auth/models"
	"golang.org/x/oauth2/github"
)

var githubDefinition = definition{
	name:        "GitHub",
	authURL:     github.Endpoint.AuthURL,
	tokenURL:    github.Endpoint.TokenURL,
	userInfoURL: "https://api.github.com/user",
	emailsURL:   "https://api.github.com/user/emails",
	scopes:      []string{"user:email", "read:user"},
	// the legacy token endpoint answers with a query string unless JSON is negotiated
	responseEncoding: EncodingForm,
	offlineAccess:    true,
	mapProfile:       mapGitHubProfile,
}

// mapGitHubProfile handles GitHub's numeric id and the optional display name.
// A null email stays empty here; the exchange client resolves it from the emails list.
func mapGitHubProfile(raw map[string]any) models.UserProfile {
	name := stringField(raw, "name")
	if name == "" {
		name = stringField(raw, "login")
	}
	return models.UserProfile{
		ID:       stringField(raw, "id"),
		Name:     name,
		Email:    stringField(raw, "email"),
		Avatar:   stringField(raw, "avatar_url"),
		Provider: models.GitHub,
		RawData:  raw,
	}
}

// GitHubEmail is one entry of the authenticated user's email list
type GitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// PrimaryEmail picks the entry flagged primary, falling back to the first entry.
func PrimaryEmail(emails []GitHubEmail) string {
	for _, e := range emails {
		if e.Primary {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}
