package constants

import "time"

const (
	// UserAgent identifies every outbound call to providers and collaborators
	UserAgent = "OAuth-Learning-System/1.0"

	// TokenType is applied when a provider omits token_type
	TokenType = "Bearer"

	// DefaultExpiresIn is used when a token response carries no expires_in, in seconds
	DefaultExpiresIn = 3600

	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// ActiveSessionDuration is the lifetime of the client session marker
	ActiveSessionDuration = 10 * time.Minute
)

// Inactivity policy defaults
const (
	InactivityTimeout     = 5 * time.Minute
	InactivityWarningLead = 60 * time.Second
	InactivityCountdown   = 60 * time.Second
)

// Storage keys. Profile data lives in the persistent scope, everything else in the session scope.
const (
	KeyUserProfile   = "user_profile"
	KeyTokenData     = "oauth_token_data"
	KeyClientSession = "client_session"
	KeyOAuthState    = "oauth_state"
	KeyOAuthProvider = "oauth_provider"
)

// Verification methods reported by the orchestrator
const (
	MethodClientSession = "client-session"
	MethodProviderCheck = "provider-check"
	MethodNone          = "none"
)

// Grant types accepted by the token endpoint surface
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)
