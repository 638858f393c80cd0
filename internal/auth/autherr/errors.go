// Package autherr defines the failure taxonomy shared by the exchange client, the
// token service surface and the session layer.
package autherr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidProvider     = errors.New("invalid provider")
	ErrMissingParameters   = errors.New("missing required parameters")
	ErrMissingCredentials  = errors.New("provider credentials not configured")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("failed to fetch user profile")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrPersistenceFailed   = errors.New("persistence failed")
	ErrParseFailed         = errors.New("failed to parse provider response")
	ErrNotFound            = errors.New("not found")
	ErrStateMismatch       = errors.New("state parameter mismatch")
	ErrLoginInProgress     = errors.New("login already in progress")

	// ErrTransport marks failures where no answer came back from the remote side
	ErrTransport = errors.New("transport failure")
)

// ProviderError is a failure reported by a provider endpoint. It unwraps to Kind so
// callers can match with errors.Is against the sentinels above.
type ProviderError struct {
	Kind       error
	Provider   string
	StatusCode int
	RawBody    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.RawBody != "" {
		msg += ": " + e.RawBody
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Detail returns the raw provider text when present, otherwise the error message.
func Detail(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.RawBody != "" {
		return pe.RawBody
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// StatusCode extracts the provider HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

// IsTerminal reports whether a refresh failure means the stored session can never be
// refreshed again, as opposed to a transient transport problem.
func IsTerminal(err error) bool {
	if err == nil || errors.Is(err, ErrTransport) {
		return false
	}
	return errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidProvider)
}

// IsProviderRejection reports whether err is a non-2xx answer from a provider rather
// than a transport or parse failure.
func IsProviderRejection(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode != 0
}
