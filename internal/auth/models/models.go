package models

import (
	"fmt"
	"time"
)

// ProviderID names one of the supported identity providers
type ProviderID string

const (
	Discord ProviderID = "discord"
	GitHub  ProviderID = "github"
	Google  ProviderID = "google"
)

// Providers lists every supported provider in display order
var Providers = []ProviderID{Discord, GitHub, Google}

// ParseProviderID validates a raw provider string.
func ParseProviderID(s string) (ProviderID, bool) {
	for _, p := range Providers {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

func (p ProviderID) String() string { return string(p) }

// TokenSet is the normalized token material returned by a grant.
// ExpiresAt is in epoch milliseconds and is always computed when the token is received.
type TokenSet struct {
	AccessToken  string `json:"access_token" yaml:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in" yaml:"expires_in"`
	TokenType    string `json:"token_type" yaml:"token_type"`
	Scope        string `json:"scope" yaml:"scope"`
	ExpiresAt    int64  `json:"expires_at" yaml:"expires_at"`
}

// IsExpired reports whether now has reached ExpiresAt.
func (t *TokenSet) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= t.ExpiresAt
}

// ExpiresTime returns ExpiresAt as a time.Time.
func (t *TokenSet) ExpiresTime() time.Time {
	return time.UnixMilli(t.ExpiresAt)
}

// AuthorizationHeader formats the value sent in the Authorization header.
func (t *TokenSet) AuthorizationHeader() string {
	return fmt.Sprintf("%s %s", t.TokenType, t.AccessToken)
}

// UserProfile is a provider profile mapped onto a single shape. ID is only unique per provider.
type UserProfile struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Email    string         `json:"email" yaml:"email"`
	Avatar   string         `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Provider ProviderID     `json:"provider" yaml:"provider"`
	RawData  map[string]any `json:"raw_data,omitempty" yaml:"raw_data,omitempty"`
}

// UserSession aggregates the profile with its current tokens. Timestamps are epoch ms.
type UserSession struct {
	User      UserProfile `json:"user"`
	Tokens    TokenSet    `json:"tokens"`
	CreatedAt int64       `json:"created_at"`
	UpdatedAt int64       `json:"updated_at"`
}

// ActiveSession is the short-lived client session marker. Its validity says nothing
// about the token set.
type ActiveSession struct {
	IsValid   bool   `json:"isValid" yaml:"is_valid"`
	CreatedAt int64  `json:"createdAt" yaml:"created_at"`
	ExpiresAt int64  `json:"expiresAt" yaml:"expires_at"`
	UserID    string `json:"userId" yaml:"user_id"`
}

// Expired reports whether the marker has reached its expiry.
func (a *ActiveSession) Expired(now time.Time) bool {
	return now.UnixMilli() > a.ExpiresAt
}

// StoredTokens is the session-scope record holding token material and session timestamps.
type StoredTokens struct {
	Tokens    TokenSet `json:"tokens" yaml:"tokens"`
	CreatedAt int64    `json:"created_at" yaml:"created_at"`
	UpdatedAt int64    `json:"updated_at" yaml:"updated_at"`
}
