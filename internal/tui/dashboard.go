package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/brizzai/authlab/internal/auth/constants"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/session"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DashboardKeyMap holds key bindings for the dashboard actions
type DashboardKeyMap struct {
	refresh key.Binding
	verify  key.Binding
	logout  key.Binding
	quit    key.Binding
}

func newDashboardKeyMap() *DashboardKeyMap {
	return &DashboardKeyMap{
		refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh tokens"),
		),
		verify: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "Verify session"),
		),
		logout: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Logout"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
	}
}

func (k DashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.refresh, k.verify, k.logout, k.quit}
}

func (k DashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// logoutMsg asks the app to end the session
type logoutMsg struct{}

// DashboardModel shows the signed-in user, token details and verification state
type DashboardModel struct {
	keys      *DashboardKeyMap
	help      help.Model
	bar       progress.Model
	width     int
	session   *models.UserSession
	status    session.Status
	verifying bool
	message   string
	now       time.Time
	activeTTL time.Duration
}

func NewDashboardModel(activeTTL time.Duration) DashboardModel {
	if activeTTL <= 0 {
		activeTTL = constants.ActiveSessionDuration
	}
	return DashboardModel{
		keys:      newDashboardKeyMap(),
		help:      help.New(),
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		activeTTL: activeTTL,
	}
}

// WithSession sets the session being displayed.
func (m DashboardModel) WithSession(s *models.UserSession, now time.Time) DashboardModel {
	m.session = s
	m.now = now
	return m
}

func (m DashboardModel) Init() tea.Cmd {
	return nil
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.logout):
			return m, func() tea.Msg { return logoutMsg{} }
		}

	case verifiedMsg:
		m.verifying = false
		m.status = msg.status
		if !msg.status.Verified && msg.status.Err != nil {
			m.message = errorMessageStyle("Verification failed: " + msg.status.Err.Error())
		} else {
			m.message = ""
		}

	case refreshedMsg:
		if msg.err != nil {
			m.message = errorMessageStyle("Refresh failed: " + msg.err.Error())
			return m, nil
		}
		m.session = msg.session
		m.message = completeMessageStyle("Tokens refreshed")

	case clockTickMsg:
		m.now = time.Time(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
	}
	return m, nil
}

// SetVerifying marks a verification as in flight.
func (m DashboardModel) SetVerifying() DashboardModel {
	m.verifying = true
	return m
}

func (m DashboardModel) View() string {
	if m.session == nil {
		return docStyle.Render("Loading session...")
	}
	u := m.session.User
	t := m.session.Tokens

	profile := lipgloss.JoinVertical(
		lipgloss.Left,
		sectionHeaderStyle.Render("Profile"),
		row("Name", u.Name),
		row("Email", orNone(u.Email)),
		row("User ID", u.ID),
		row("Provider", string(u.Provider)),
	)

	tokens := lipgloss.JoinVertical(
		lipgloss.Left,
		sectionHeaderStyle.Render("Tokens"),
		row("Type", t.TokenType),
		row("Scope", orNone(t.Scope)),
		row("Access token", mask(t.AccessToken)),
		row("Refresh token", hasValue(t.RefreshToken)),
		row("Expires in", session.FormatExpiry(t.ExpiresTime().Sub(m.now))),
	)

	verification := lipgloss.JoinVertical(
		lipgloss.Left,
		sectionHeaderStyle.Render("Verification"),
		row("Status", m.statusText()),
		row("Method", orNone(m.status.Method)),
		row("Checked", m.checkedText()),
		row("Client session", m.activeText()),
		"",
		m.bar.ViewAs(m.activeFraction()),
	)

	parts := []string{
		titleStyle.Render("OAuth Learning System"),
		"",
		panelStyle.Render(profile),
		panelStyle.Render(tokens),
		panelStyle.Render(verification),
	}
	if m.message != "" {
		parts = append(parts, "", m.message)
	}
	parts = append(parts, "", m.help.View(m.keys))
	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m DashboardModel) statusText() string {
	switch {
	case m.verifying:
		return "Verifying..."
	case m.status.CheckedAt.IsZero():
		return "Not checked yet"
	case m.status.Verified:
		return completeMessageStyle("Verified")
	default:
		return errorMessageStyle("Unverified")
	}
}

func (m DashboardModel) checkedText() string {
	if m.status.CheckedAt.IsZero() {
		return "-"
	}
	return m.status.CheckedAt.Format("15:04:05")
}

func (m DashboardModel) activeText() string {
	if m.status.Expiry.IsZero() {
		return "-"
	}
	return session.FormatExpiry(m.status.Expiry.Sub(m.now)) + " left"
}

func (m DashboardModel) activeFraction() float64 {
	if m.status.Expiry.IsZero() {
		return 0
	}
	left := m.status.Expiry.Sub(m.now)
	if left <= 0 {
		return 0
	}
	f := float64(left) / float64(m.activeTTL)
	if f > 1 {
		return 1
	}
	return f
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func hasValue(s string) string {
	if s == "" {
		return "none"
	}
	return "present"
}

// mask shows only the ends of a token.
func mask(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("•", len(token))
	}
	return fmt.Sprintf("%s…%s", token[:4], token[len(token)-4:])
}
