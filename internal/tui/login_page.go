package tui

import (
	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/brizzai/authlab/internal/tui/models"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// loginKeyMap holds key bindings for the sign-in page.
type loginKeyMap struct {
	signIn key.Binding
	cancel key.Binding
	quit   key.Binding
}

func newLoginKeyMap() *loginKeyMap {
	return &loginKeyMap{
		signIn: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Sign in"),
		),
		cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Cancel sign in"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
	}
}

// signInMsg asks the app to start a login with the selected provider
type signInMsg struct {
	item models.ProviderItem
}

// cancelSignInMsg asks the app to abandon the pending login
type cancelSignInMsg struct{}

type loginStartedMsg struct {
	item models.ProviderItem
	url  string
	err  error
}

// newProviderDelegate returns a list.DefaultDelegate that refuses unconfigured providers.
func newProviderDelegate(keys *loginKeyMap) list.DefaultDelegate {
	d := list.NewDefaultDelegate()

	d.UpdateFunc = func(msg tea.Msg, m *list.Model) tea.Cmd {
		item, ok := m.SelectedItem().(models.ProviderItem)
		if !ok {
			return nil
		}

		if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.signIn) {
			if !item.Available() {
				return m.NewStatusMessage(statusMessageStyle(item.Provider.Name + " has no client id configured"))
			}
			return func() tea.Msg { return signInMsg{item: item} }
		}
		return nil
	}

	help := []key.Binding{keys.signIn}
	d.ShortHelpFunc = func() []key.Binding { return help }
	d.FullHelpFunc = func() [][]key.Binding { return [][]key.Binding{help} }
	return d
}

// LoginPageModel lists providers and shows progress while waiting for the callback
type LoginPageModel struct {
	list    list.Model
	keys    *loginKeyMap
	spinner spinner.Model
	waiting bool
	pending models.ProviderItem
	authURL string
	notice  string
}

func NewLoginPageModel(providerList []providers.ProviderConfig) LoginPageModel {
	keys := newLoginKeyMap()

	items := make([]list.Item, len(providerList))
	for i, p := range providerList {
		items[i] = models.ProviderItem{Provider: p}
	}

	l := list.New(items, newProviderDelegate(keys), 0, 0)
	l.Title = titleStyle.Render("OAuth Learning System")
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.quit}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	return LoginPageModel{list: l, keys: keys, spinner: s}
}

func (m LoginPageModel) Init() tea.Cmd {
	return nil
}

// Waiting switches the page to the "complete the sign in in your browser" state.
func (m LoginPageModel) Waiting(item models.ProviderItem, authURL string) (LoginPageModel, tea.Cmd) {
	m.waiting = true
	m.pending = item
	m.authURL = authURL
	return m, m.spinner.Tick
}

// Reset returns to the provider list with notice shown above it.
func (m LoginPageModel) Reset(notice string) LoginPageModel {
	m.waiting = false
	m.authURL = ""
	m.notice = notice
	return m
}

func (m LoginPageModel) Update(msg tea.Msg) (LoginPageModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		if m.waiting {
			if key.Matches(msg, m.keys.cancel) {
				return m, func() tea.Msg { return cancelSignInMsg{} }
			}
			return m, nil
		}

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-2)
	}

	if m.waiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m LoginPageModel) View() string {
	if m.waiting {
		content := lipgloss.JoinVertical(
			lipgloss.Left,
			titleStyle.Render("Signing in with "+m.pending.Provider.Name),
			"",
			m.spinner.View()+" Waiting for the provider to redirect back...",
			"",
			"If the browser did not open, visit:",
			m.authURL,
			"",
			helpStyle.Render("esc cancel • ctrl+c quit"),
		)
		return docStyle.Render(content)
	}

	view := m.list.View()
	if m.notice != "" {
		view = lipgloss.JoinVertical(lipgloss.Left, m.notice, "", view)
	}
	return docStyle.Render(view)
}
