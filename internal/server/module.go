package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brizzai/authlab/internal/auth"
	"github.com/brizzai/authlab/internal/auth/exchange"
	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/brizzai/authlab/internal/config"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/requester"
	"github.com/brizzai/authlab/internal/server/handler"
	"github.com/brizzai/authlab/internal/userstore"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the token service and runs it for the lifetime of the fx app.
var Module = fx.Module("token_server",
	fx.Provide(
		clockwork.NewRealClock,
		providers.NewRegistry,
		NewExchanger,
		NewEmbeddedStore,
		NewStore,
		auth.NewService,
		NewServer,
	),
	fx.Invoke(registerLifecycle),
)

// NewExchanger creates the provider client on the shared outbound HTTP client.
func NewExchanger(registry *providers.Registry, client *http.Client, clock clockwork.Clock) *exchange.Client {
	return exchange.NewClient(registry, exchange.WithHTTPClient(client), exchange.WithClock(clock))
}

// NewEmbeddedStore returns an in-memory store when store.embedded is set, nil otherwise.
func NewEmbeddedStore(cfg *config.Config) *userstore.MemoryServer {
	if !cfg.Store.Embedded {
		return nil
	}
	return userstore.NewMemoryServer()
}

// NewStore creates the persistence client. With an embedded store it calls back into this server.
func NewStore(cfg *config.Config, client *http.Client, clock clockwork.Clock, embedded *userstore.MemoryServer) userstore.Store {
	r := requester.NewHTTPRequester(client, requester.Endpoint{BaseURL: StoreBaseURL(cfg, embedded != nil)})
	if cfg.Store.Timeout > 0 {
		r.SetTimeout(cfg.Store.Timeout)
	}
	return userstore.NewClient(r, clock)
}

// StoreBaseURL is the users/tokens base URL the token service writes to.
func StoreBaseURL(cfg *config.Config, embedded bool) string {
	if !embedded {
		return cfg.Store.BaseURL
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d%s", host, cfg.Server.Port, handler.StorePrefix)
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := srv.Listen()
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil {
					logger.Error("Token service stopped", zap.Error(err))
					if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
						logger.Error("Failed to request shutdown", zap.Error(err))
					}
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
