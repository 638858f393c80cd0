// Package login starts authorization code logins and completes them from the provider callback.
package login

import (
	"fmt"
	"sync"

	"github.com/brizzai/authlab/internal/auth/autherr"
	"github.com/brizzai/authlab/internal/auth/models"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// URLBuilder produces the provider authorization URL for a login.
type URLBuilder interface {
	AuthCodeURL(provider models.ProviderID, state string) (string, error)
}

// AuthURLFunc adapts a function to URLBuilder.
type AuthURLFunc func(provider models.ProviderID, state string) (string, error)

func (f AuthURLFunc) AuthCodeURL(provider models.ProviderID, state string) (string, error) {
	return f(provider, state)
}

// Initiator starts at most one login at a time.
type Initiator struct {
	mu       sync.Mutex
	inFlight bool
	manager  *session.Manager
	urls     URLBuilder
	newState func() string
}

func NewInitiator(manager *session.Manager, urls URLBuilder) *Initiator {
	return &Initiator{
		manager:  manager,
		urls:     urls,
		newState: uuid.NewString,
	}
}

// Begin stores a fresh CSRF state for provider and returns the URL to send the user to.
// It fails with ErrLoginInProgress until Release is called.
func (i *Initiator) Begin(provider models.ProviderID) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.inFlight {
		return "", autherr.ErrLoginInProgress
	}
	if _, ok := models.ParseProviderID(string(provider)); !ok {
		return "", fmt.Errorf("%w: %q", autherr.ErrInvalidProvider, provider)
	}

	state := i.newState()
	if err := i.manager.SaveState(state, provider); err != nil {
		return "", fmt.Errorf("failed to store login state: %w", err)
	}
	authURL, err := i.urls.AuthCodeURL(provider, state)
	if err != nil {
		if clearErr := i.manager.ClearState(); clearErr != nil {
			logger.Warn("Failed to drop login state", zap.Error(clearErr))
		}
		return "", err
	}

	i.inFlight = true
	logger.Info("Login started", logger.Provider(string(provider)))
	return authURL, nil
}

// Release allows the next Begin.
func (i *Initiator) Release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inFlight = false
}

func (i *Initiator) InFlight() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inFlight
}
