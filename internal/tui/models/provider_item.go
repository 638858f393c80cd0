package models

import (
	"strings"

	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/charmbracelet/lipgloss"
)

// ProviderItem wraps a provider for display in the sign-in list
// Implements list.Item
type ProviderItem struct {
	Provider providers.ProviderConfig
}

func (i ProviderItem) Title() string {
	return "Sign in with " + i.Provider.Name
}

func (i ProviderItem) Description() string {
	if !i.Available() {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Render("[Not configured]")
	}
	return "Scopes: " + i.Provider.ScopeString()
}

// Available reports whether an authorization URL can be built. The client secret may
// live only on the token service.
func (i ProviderItem) Available() bool {
	return i.Provider.ClientID != ""
}

func (i ProviderItem) FilterValue() string {
	return strings.ToLower(i.Provider.Name) + " " + string(i.Provider.ID)
}
