package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// stayMsg and logoutNowMsg are the two answers to the inactivity warning
type (
	stayMsg      struct{}
	logoutNowMsg struct{}
)

// InactivityModal is the warning shown before an inactivity logout.
type InactivityModal struct {
	remaining time.Duration
	total     time.Duration
	bar       progress.Model
	stay      key.Binding
	logout    key.Binding
}

func NewInactivityModal(remaining time.Duration) InactivityModal {
	return InactivityModal{
		remaining: remaining,
		total:     remaining,
		bar:       progress.New(progress.WithSolidFill("#f23a74"), progress.WithWidth(30), progress.WithoutPercentage()),
		stay: key.NewBinding(
			key.WithKeys("s", "enter"),
			key.WithHelp("s", "Stay signed in"),
		),
		logout: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Logout now"),
		),
	}
}

// Update handles the countdown and the two answers. Other keys are swallowed.
func (m InactivityModal) Update(msg tea.Msg) (InactivityModal, tea.Cmd) {
	switch msg := msg.(type) {
	case CountdownMsg:
		m.remaining = msg.Remaining
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.stay):
			return m, func() tea.Msg { return stayMsg{} }
		case key.Matches(msg, m.logout):
			return m, func() tea.Msg { return logoutNowMsg{} }
		case msg.Type == tea.KeyCtrlC:
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m InactivityModal) fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.remaining) / float64(m.total)
}

func (m InactivityModal) View() string {
	secs := int(m.remaining.Round(time.Second) / time.Second)
	content := lipgloss.JoinVertical(
		lipgloss.Center,
		sectionHeaderStyle.Render("Are you still there?"),
		"",
		fmt.Sprintf("You will be logged out in %d seconds due to inactivity.", secs),
		"",
		m.bar.ViewAs(m.fraction()),
		"",
		helpStyle.Render("s stay signed in • l logout now"),
	)
	return docStyle.Render(modalStyle.Render(content))
}
