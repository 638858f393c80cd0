// Package handler provides HTTP request handling for the token service.
package handler

import (
	"net/http"

	"github.com/brizzai/authlab/internal/auth"
	"github.com/brizzai/authlab/internal/auth/middleware"
	"github.com/brizzai/authlab/internal/config"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// StorePrefix is where the embedded users/tokens store is mounted.
const StorePrefix = "/store"

// Handler manages HTTP request handling and middleware configuration.
type Handler struct {
	auth  *auth.Service
	store http.Handler
}

// NewHandler creates a new HTTP handler. store may be nil when persistence lives elsewhere.
func NewHandler(auth *auth.Service, store http.Handler) *Handler {
	return &Handler{
		auth:  auth,
		store: store,
	}
}

// CreateHTTPHandler creates an HTTP handler with the shared middleware stack.
func (h *Handler) CreateHTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, map[string]string{"status": "ok", "version": config.GetVersionInfo()})
	})

	h.auth.RegisterRoutes(r)
	logger.Info("Registered token service routes")

	if h.store != nil {
		r.Mount(StorePrefix, h.store)
		logger.Info("Serving embedded user store", zap.String("prefix", StorePrefix))
	}
	return r
}
