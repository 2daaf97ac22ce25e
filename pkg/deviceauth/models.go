package deviceauth

import (
	"time"

	"golang.org/x/oauth2"
)

// AuthenticationRequest is a pending device authorization returned when a
// flow starts. The user completes it by visiting VerificationURL and
// entering UserCode before ExpiresAt.
type AuthenticationRequest struct {
	ID              string    `json:"id"`
	UserCode        string    `json:"userCode"`
	VerificationURL string    `json:"verificationUrl"`
	ExpiresAt       time.Time `json:"expiresAt"` // Always UTC
}

// AuthenticationToken is a credential obtained from an approved flow or a
// refresh.
type AuthenticationToken struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"` // Always UTC
	Scopes      []Scope   `json:"scopes"`

	// RefreshToken is empty when the token cannot be renewed
	RefreshToken string `json:"refreshToken,omitempty"`
}

// IsExpired reports whether the access token has expired.
func (t *AuthenticationToken) IsExpired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt reports whether the access token is expired at now. Both
// instants are compared as absolute times, so their zones do not matter.
func (t *AuthenticationToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// CanRefresh reports whether the token carries a refresh token.
func (t *AuthenticationToken) CanRefresh() bool {
	return t.RefreshToken != ""
}

// HasScope reports whether s was granted.
func (t *AuthenticationToken) HasScope(s Scope) bool {
	for _, granted := range t.Scopes {
		if granted == s {
			return true
		}
	}
	return false
}

// OAuth2 converts the token for use with golang.org/x/oauth2 clients.
// Granted scopes are available from the result via Extra("scopes").
func (t *AuthenticationToken) OAuth2() *oauth2.Token {
	scopes := make([]string, len(t.Scopes))
	for i, s := range t.Scopes {
		scopes[i] = s.String()
	}

	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	return tok.WithExtra(map[string]any{"scopes": scopes})
}
