package login

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/session"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeError         Outcome = "error"
	OutcomeStateMismatch Outcome = "state_mismatch"
)

// Result is the end state of a callback. Detail holds raw provider text for diagnostics.
type Result struct {
	Outcome Outcome
	Session *models.UserSession
	Err     error
	Detail  string
}

// Exchanger redeems an authorization code.
type Exchanger interface {
	Exchange(ctx context.Context, provider models.ProviderID, code, state string) (*models.UserSession, error)
}

// Complete handles the provider redirect query. A state that does not match the stored
// one is reported as OutcomeStateMismatch, never as a generic error.
func Complete(ctx context.Context, m *session.Manager, ex Exchanger, query url.Values) Result {
	if e := query.Get("error"); e != "" {
		desc := query.Get("error_description")
		if desc == "" {
			desc = e
		}
		return failed(m, fmt.Errorf("provider returned %s", e), desc)
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		return failed(m, autherr.ErrMissingParameters, "Missing code or state parameter")
	}

	storedState, provider := m.StoredState()
	if storedState == "" || state != storedState {
		clearState(m)
		logger.Warn("Login state mismatch, possible CSRF attempt")
		return Result{Outcome: OutcomeStateMismatch, Err: autherr.ErrStateMismatch, Detail: "Invalid state parameter"}
	}
	if provider == "" {
		return failed(m, autherr.ErrInvalidProvider, "No provider found")
	}

	s, err := ex.Exchange(ctx, provider, code, state)
	if err != nil {
		return failed(m, err, autherr.Detail(err))
	}
	if err := m.Save(s); err != nil {
		return failed(m, err, "Failed to store session")
	}
	clearState(m)

	logger.Info("Login completed", logger.Provider(string(provider)), logger.UserID(s.User.ID))
	return Result{Outcome: OutcomeSuccess, Session: s}
}

func failed(m *session.Manager, err error, detail string) Result {
	clearState(m)
	logger.Warn("Login failed", zap.String("detail", detail), zap.Error(err))
	return Result{Outcome: OutcomeError, Err: err, Detail: detail}
}

func clearState(m *session.Manager) {
	if err := m.ClearState(); err != nil {
		logger.Warn("Failed to drop login state", zap.Error(err))
	}
}

var pageTmpl = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Message}}</p><p>You can close this window and return to the terminal.</p></body></html>
`))

// CallbackHandler completes the login for every request it serves and hands the
// result to done.
func CallbackHandler(m *session.Manager, ex Exchanger, done func(Result)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := Complete(r.Context(), m, ex, r.URL.Query())

		status := http.StatusOK
		page := struct{ Title, Message string }{Title: "Login successful"}
		switch res.Outcome {
		case OutcomeSuccess:
			page.Message = fmt.Sprintf("Signed in as %s.", res.Session.User.Name)
		case OutcomeStateMismatch:
			status = http.StatusForbidden
			page.Title, page.Message = "Security check failed", "The login state did not match. Please start the login again."
		default:
			status = http.StatusBadRequest
			page.Title, page.Message = "Login failed", res.Detail
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := pageTmpl.Execute(w, page); err != nil {
			logger.Error("Failed to render callback page", zap.Error(err))
		}
		if done != nil {
			done(res)
		}
	}
}
