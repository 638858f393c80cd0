package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/brizzai/authlab/internal/auth"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/brizzai/authlab/internal/config"
	"github.com/brizzai/authlab/internal/inactivity"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/login"
	"github.com/brizzai/authlab/internal/requester"
	"github.com/brizzai/authlab/internal/server"
	"github.com/brizzai/authlab/internal/session"
	"github.com/brizzai/authlab/internal/storage"
	"github.com/brizzai/authlab/internal/tokenservice"
	"github.com/brizzai/authlab/internal/tui"
	"github.com/brizzai/authlab/internal/userstore"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runLogin runs the sign-in flow and the session dashboard
func runLogin(cmd *cobra.Command, args []string) error {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	// the TUI owns the terminal
	cfg.Logging.DisableConsole = true
	if cfg.Logging.OutputPath == "" {
		cfg.Logging.OutputPath = filepath.Join(filepath.Dir(cfg.Session.ProfilePath), "authlab.log")
	}
	if err := logger.InitLogger(&cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	httpClient := requester.NewHTTPClient(cfg)
	registry := providers.NewRegistry(cfg)
	router := chi.NewRouter()

	useLocal, _ := cmd.Flags().GetBool("local")
	tokens := newTokenService(cfg, httpClient, registry, router, useLocal)

	manager := session.NewManager(
		storage.NewFileScope(cfg.Session.ProfilePath),
		storage.NewMemoryScope(),
		tokens,
		session.WithActiveDuration(cfg.Session.ActiveDuration),
	)
	manager.Load(ctx)
	manager.RestoreActive()
	defer manager.Wait()

	initiator := login.NewInitiator(manager, login.AuthURLFunc(func(p models.ProviderID, state string) (string, error) {
		pc, err := registry.Get(p)
		if err != nil {
			return "", err
		}
		return pc.AuthCodeURL(state, cfg.RedirectURL()), nil
	}))

	events := make(chan tea.Msg, 16)
	router.Get("/callback", login.CallbackHandler(manager, tokens, func(res login.Result) {
		select {
		case events <- tui.LoginResultMsg{Result: res}:
		default:
			logger.Warn("Dropped login result, the dashboard is not listening", zap.String("outcome", string(res.Outcome)))
		}
	}))

	stop, err := serveCallback(cfg, router)
	if err != nil {
		return err
	}
	defer stop()

	var openURL func(string) error
	if noBrowser, _ := cmd.Flags().GetBool("no-browser"); !noBrowser {
		openURL = openBrowser
	}

	model := tui.NewAppModel(ctx, tui.Deps{
		Manager:   manager,
		Verifier:  session.NewVerifier(manager),
		Initiator: initiator,
		Providers: registry.List(),
		Inactivity: inactivity.Config{
			Timeout:     cfg.Inactivity.Timeout,
			WarningLead: cfg.Inactivity.WarningLead,
			Countdown:   cfg.Inactivity.Countdown,
		},
		VerifyInterval: cfg.Session.VerifyInterval,
		ActiveTTL:      cfg.Session.ActiveDuration,
		OpenURL:        openURL,
		Events:         events,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	m, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running program: %w", err)
	}

	if finalModel, ok := m.(tui.AppModel); ok {
		finalModel.Shutdown()
		if finalModel.OnDashboard() {
			if s := manager.Stored(); s != nil {
				pterm.Info.Printfln("Signed in as %s via %s. Token expires in %s.",
					pterm.LightGreen(s.User.Name),
					pterm.White(s.User.Provider),
					session.FormatExpiry(manager.TimeUntilExpiration()))
			}
		}
	}
	return nil
}

// newTokenService returns the HTTP client for the token service, or with local set, the
// service itself running in this process.
func newTokenService(cfg *config.Config, client *http.Client, registry *providers.Registry, router chi.Router, local bool) tokenservice.Service {
	if !local {
		return tokenservice.NewRemote(client, cfg.Session.TokenServiceURL, cfg.HTTP.Timeout)
	}

	storeURL := cfg.Store.BaseURL
	if cfg.Store.Embedded {
		mem := userstore.NewMemoryServer()
		router.Mount("/store", mem.Handler())
		storeURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/store"
	}
	r := requester.NewHTTPRequester(client, requester.Endpoint{BaseURL: storeURL})
	if cfg.Store.Timeout > 0 {
		r.SetTimeout(cfg.Store.Timeout)
	}

	clock := clockwork.NewRealClock()
	exchanger := server.NewExchanger(registry, client, clock)
	return tokenservice.NewLocal(auth.NewService(cfg, exchanger, userstore.NewClient(r, clock), clock))
}

// serveCallback listens on the base_url host for the provider redirect.
func serveCallback(cfg *config.Config, handler http.Handler) (func(), error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base_url: %w", err)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the callback on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Callback listener stopped", zap.Error(err))
		}
	}()
	logger.Info("Listening for the provider callback", zap.String("redirect_url", cfg.RedirectURL()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func openBrowser(u string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", u)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		c = exec.Command("xdg-open", u)
	}
	return c.Start()
}
