package tui

import (
	"time"

	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/inactivity"
	"github.com/brizzai/authlab/internal/login"
	"github.com/brizzai/authlab/internal/session"
	tea "github.com/charmbracelet/bubbletea"
)

// LoginResultMsg carries the outcome of the provider callback
type LoginResultMsg struct {
	Result login.Result
}

// WarningMsg is sent when the inactivity warning starts
type WarningMsg struct {
	Remaining time.Duration
}

// CountdownMsg is sent every second while the inactivity warning is shown
type CountdownMsg struct {
	Remaining time.Duration
}

// LoggedOutMsg is sent when the inactivity monitor ends the session
type LoggedOutMsg struct {
	Reason inactivity.Reason
}

type verifiedMsg struct {
	status session.Status
}

type refreshedMsg struct {
	session *models.UserSession
	err     error
}

type verifyTickMsg struct {
	generation int
}

type clockTickMsg time.Time

// listen waits for the next message pushed from outside the program.
func listen(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}
