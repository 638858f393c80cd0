package models

// TokenRequest is the body of POST /oauth/token. Either Code+State or RefreshToken+UserID is set.
type TokenRequest struct {
	Code         string `json:"code,omitempty"`
	Provider     string `json:"provider"`
	State        string `json:"state,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// IsRefresh reports whether the request selects the refresh path.
func (r *TokenRequest) IsRefresh() bool {
	return r.RefreshToken != "" && r.Provider != "" && r.UserID != ""
}

// RefreshResponse is the success body of the refresh path
type RefreshResponse struct {
	Tokens  TokenSet `json:"tokens"`
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
}

// VerifyRequest is the body of POST /oauth/verify
type VerifyRequest struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Provider    string `json:"provider"`
}

// VerifyResponse is the body of POST /oauth/verify for both 200 and 401
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// ErrorResponse is the body of every non-2xx answer from the token service
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
