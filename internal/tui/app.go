package tui

import (
	"context"
	"errors"
	"time"

	authmodels "github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/brizzai/authlab/internal/inactivity"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/login"
	"github.com/brizzai/authlab/internal/session"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Deps is everything the TUI needs from the rest of the application
type Deps struct {
	Manager        *session.Manager
	Verifier       *session.Verifier
	Initiator      *login.Initiator
	Providers      []providers.ProviderConfig
	Inactivity     inactivity.Config
	VerifyInterval time.Duration
	ActiveTTL      time.Duration
	OpenURL        func(url string) error
	// Events delivers messages produced outside the program, such as LoginResultMsg.
	Events chan tea.Msg
}

type page string

const (
	pageLogin     page = "login"
	pageDashboard page = "dashboard"
)

// monitorControl is shared by every copy of the model.
type monitorControl struct {
	mon    *inactivity.Monitor
	cancel context.CancelFunc
}

// AppModel is the main application model that manages page switching
type AppModel struct {
	ctx        context.Context
	deps       Deps
	page       page
	loginPage  LoginPageModel
	dashboard  DashboardModel
	modal      InactivityModal
	warning    bool
	generation int
	monitor    *monitorControl
}

// NewAppModel opens on the dashboard when a usable session is already stored
func NewAppModel(ctx context.Context, deps Deps) AppModel {
	if deps.VerifyInterval <= 0 {
		deps.VerifyInterval = 30 * time.Second
	}
	if deps.Events == nil {
		deps.Events = make(chan tea.Msg, 16)
	}
	a := AppModel{
		ctx:       ctx,
		deps:      deps,
		page:      pageLogin,
		loginPage: NewLoginPageModel(deps.Providers),
		dashboard: NewDashboardModel(deps.ActiveTTL),
		monitor:   &monitorControl{},
	}
	if deps.Manager.HasFastSession() {
		a.page = pageDashboard
		a.dashboard = a.dashboard.WithSession(deps.Manager.Stored(), a.now()).SetVerifying()
	}
	return a
}

// Init initializes the AppModel
func (a AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{listen(a.deps.Events), clockTick()}
	if a.page == pageDashboard {
		cmds = append(cmds, a.verify(), a.scheduleVerify(), a.startMonitor())
	}
	return tea.Batch(cmds...)
}

// Update handles app-level messages and delegates to the active page
func (a AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		var cmd1, cmd2 tea.Cmd
		a.loginPage, cmd1 = a.loginPage.Update(msg)
		a.dashboard, cmd2 = a.dashboard.Update(msg)
		return a, tea.Batch(cmd1, cmd2)

	case clockTickMsg:
		a.dashboard, _ = a.dashboard.Update(msg)
		return a, clockTick()

	case LoginResultMsg:
		return a.handleLoginResult(msg.Result)

	case WarningMsg:
		if a.page == pageDashboard {
			a.warning = true
			a.modal = NewInactivityModal(msg.Remaining)
		}
		return a, listen(a.deps.Events)

	case CountdownMsg:
		a.modal, _ = a.modal.Update(msg)
		return a, listen(a.deps.Events)

	case LoggedOutMsg:
		notice := "You were logged out due to inactivity."
		switch msg.Reason {
		case inactivity.ReasonTokenExpired:
			notice = "Your session expired while you were away. Please sign in again."
		case inactivity.ReasonUser:
			notice = "Signed out."
		}
		a = a.toLogin(notice)
		return a, listen(a.deps.Events)

	case stayMsg:
		a.warning = false
		return a, a.monitorCall((*inactivity.Monitor).Stay)

	case logoutNowMsg:
		return a, a.monitorCall((*inactivity.Monitor).LogoutNow)

	case logoutMsg:
		a = a.toLogin("Signed out.")
		return a, nil

	case verifyTickMsg:
		if a.page != pageDashboard || msg.generation != a.generation {
			return a, nil
		}
		a.dashboard = a.dashboard.SetVerifying()
		return a, tea.Batch(a.verify(), a.scheduleVerify())

	case verifiedMsg:
		if a.page != pageDashboard {
			return a, nil
		}
		s := a.deps.Manager.Stored()
		if !msg.status.Verified || s == nil {
			notice := "Your session has ended. Please sign in again."
			if errors.Is(msg.status.Err, session.ErrTokenInvalid) {
				notice = "Your provider no longer accepts this session. Please sign in again."
			}
			a = a.toLogin(notice)
			return a, nil
		}
		a.dashboard, _ = a.dashboard.Update(msg)
		a.dashboard = a.dashboard.WithSession(s, a.now())
		return a, nil

	case refreshedMsg:
		a.dashboard, _ = a.dashboard.Update(msg)
		if msg.err != nil && a.deps.Manager.Stored() == nil {
			a = a.toLogin("Token refresh was rejected. Please sign in again.")
		}
		return a, nil

	case signInMsg:
		return a, a.beginLogin(msg)

	case loginStartedMsg:
		if msg.err != nil {
			a.loginPage = a.loginPage.Reset(errorMessageStyle("Could not start sign in: " + msg.err.Error()))
			return a, nil
		}
		var cmd tea.Cmd
		a.loginPage, cmd = a.loginPage.Waiting(msg.item, msg.url)
		return a, cmd

	case cancelSignInMsg:
		a.deps.Initiator.Release()
		if err := a.deps.Manager.ClearState(); err != nil {
			logger.Warn("Failed to drop login state", zap.Error(err))
		}
		a.loginPage = a.loginPage.Reset(statusMessageStyle("Sign in cancelled."))
		return a, nil

	case tea.KeyMsg:
		if a.page == pageDashboard {
			return a.handleDashboardKey(msg)
		}
	}

	var cmd tea.Cmd
	switch a.page {
	case pageDashboard:
		if a.warning {
			a.modal, cmd = a.modal.Update(msg)
		} else {
			a.dashboard, cmd = a.dashboard.Update(msg)
		}
	default:
		a.loginPage, cmd = a.loginPage.Update(msg)
	}
	return a, cmd
}

func (a AppModel) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if a.warning {
		a.modal, cmd = a.modal.Update(msg)
		return a, cmd
	}

	cmds := []tea.Cmd{a.monitorCall((*inactivity.Monitor).Activity)}
	switch {
	case key.Matches(msg, a.dashboard.keys.refresh):
		cmds = append(cmds, a.refresh())
	case key.Matches(msg, a.dashboard.keys.verify):
		a.dashboard = a.dashboard.SetVerifying()
		cmds = append(cmds, a.verify())
	default:
		a.dashboard, cmd = a.dashboard.Update(msg)
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

func (a AppModel) handleLoginResult(res login.Result) (tea.Model, tea.Cmd) {
	a.deps.Initiator.Release()
	next := listen(a.deps.Events)

	switch res.Outcome {
	case login.OutcomeSuccess:
		a.loginPage = a.loginPage.Reset("")
		var cmd tea.Cmd
		a, cmd = a.enterDashboard(res.Session)
		return a, tea.Batch(next, cmd)
	case login.OutcomeStateMismatch:
		a.loginPage = a.loginPage.Reset(errorMessageStyle(
			"Security check failed: the state parameter did not match. The sign in was rejected."))
	default:
		a.loginPage = a.loginPage.Reset(errorMessageStyle("Sign in failed: " + res.Detail))
	}
	return a, next
}

func (a AppModel) enterDashboard(s *authmodels.UserSession) (AppModel, tea.Cmd) {
	a.page = pageDashboard
	a.warning = false
	a.generation++
	a.dashboard = a.dashboard.WithSession(s, a.now()).SetVerifying()
	return a, tea.Batch(a.verify(), a.scheduleVerify(), a.startMonitor())
}

func (a AppModel) toLogin(notice string) AppModel {
	a.stopMonitor()
	if err := a.deps.Manager.Clear(); err != nil {
		logger.Error("Failed to clear session", zap.Error(err))
	}
	a.page = pageLogin
	a.warning = false
	a.generation++
	a.dashboard = NewDashboardModel(a.deps.ActiveTTL)
	a.loginPage = a.loginPage.Reset(statusMessageStyle(notice))
	return a
}

func (a AppModel) beginLogin(msg signInMsg) tea.Cmd {
	initiator, open := a.deps.Initiator, a.deps.OpenURL
	return func() tea.Msg {
		u, err := initiator.Begin(msg.item.Provider.ID)
		if err != nil {
			return loginStartedMsg{item: msg.item, err: err}
		}
		if open != nil {
			if err := open(u); err != nil {
				logger.Warn("Failed to open browser", zap.Error(err))
			}
		}
		return loginStartedMsg{item: msg.item, url: u}
	}
}

func (a AppModel) verify() tea.Cmd {
	ctx, v := a.ctx, a.deps.Verifier
	return func() tea.Msg {
		return verifiedMsg{status: v.Verify(ctx)}
	}
}

func (a AppModel) refresh() tea.Cmd {
	ctx, m := a.ctx, a.deps.Manager
	return func() tea.Msg {
		s, err := m.ManualRefresh(ctx)
		return refreshedMsg{session: s, err: err}
	}
}

func (a AppModel) scheduleVerify() tea.Cmd {
	gen := a.generation
	return tea.Tick(a.deps.VerifyInterval, func(time.Time) tea.Msg {
		return verifyTickMsg{generation: gen}
	})
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockTickMsg(t) })
}

// startMonitor replaces any running inactivity monitor with a fresh one.
func (a AppModel) startMonitor() tea.Cmd {
	a.stopMonitor()

	ctx, cancel := context.WithCancel(a.ctx)
	events, m := a.deps.Events, a.deps.Manager
	push := func(msg tea.Msg) {
		select {
		case events <- msg:
		case <-ctx.Done():
		}
	}
	mon := inactivity.New(a.deps.Inactivity, inactivity.Callbacks{
		OnWarning: func(d time.Duration) { push(WarningMsg{Remaining: d}) },
		OnTick:    func(d time.Duration) { push(CountdownMsg{Remaining: d}) },
		OnLogout:  func(r inactivity.Reason) { push(LoggedOutMsg{Reason: r}) },
	},
		inactivity.WithClock(m.Clock()),
		inactivity.WithTokenCheck(func() bool { return !m.HasFastSession() }),
	)
	a.monitor.mon, a.monitor.cancel = mon, cancel

	go func() {
		if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Inactivity monitor stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a AppModel) stopMonitor() {
	if a.monitor.cancel != nil {
		a.monitor.cancel()
	}
	a.monitor.mon, a.monitor.cancel = nil, nil
}

// monitorCall runs fn against the current monitor off the update loop.
func (a AppModel) monitorCall(fn func(*inactivity.Monitor)) tea.Cmd {
	mon := a.monitor.mon
	if mon == nil {
		return nil
	}
	return func() tea.Msg {
		fn(mon)
		return nil
	}
}

func (a AppModel) now() time.Time {
	return a.deps.Manager.Clock().Now()
}

// View renders the active page
func (a AppModel) View() string {
	if a.page == pageDashboard {
		if a.warning {
			return a.modal.View()
		}
		return a.dashboard.View()
	}
	return a.loginPage.View()
}

// Shutdown stops background work. Call it with the final model once the program exits.
func (a AppModel) Shutdown() {
	a.stopMonitor()
	a.deps.Initiator.Release()
}

// OnDashboard reports whether a session is currently shown
func (a AppModel) OnDashboard() bool {
	return a.page == pageDashboard
}
