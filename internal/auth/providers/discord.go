package providers

import (
	"fmt"

	"github.com/brizzai/authlab/internal/auth/models"
)

const discordCDN = "https://cdn.discordapp.com/avatars"

var discordDefinition = definition{
	name:             "Discord",
	authURL:          "https://discord.com/api/oauth2/authorize",
	tokenURL:         "https://discord.com/api/oauth2/token",
	userInfoURL:      "https://discord.com/api/users/@me",
	scopes:           []string{"identify", "email"},
	responseEncoding: EncodingJSON,
	mapProfile:       mapDiscordProfile,
}

func mapDiscordProfile(raw map[string]any) models.UserProfile {
	id := stringField(raw, "id")
	name := stringField(raw, "global_name")
	if name == "" {
		name = stringField(raw, "username")
	}

	var avatar string
	if hash := stringField(raw, "avatar"); hash != "" {
		avatar = fmt.Sprintf("%s/%s/%s.png", discordCDN, id, hash)
	}

	return models.UserProfile{
		ID:       id,
		Name:     name,
		Email:    stringField(raw, "email"),
		Avatar:   avatar,
		Provider: models.Discord,
		RawData:  raw,
	}
}
