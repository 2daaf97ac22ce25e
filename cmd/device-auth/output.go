package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wrale/device-auth/internal/validation"
	"github.com/wrale/device-auth/pkg/deviceauth"
)

// tokenPreview is how much of a token the text output shows
const tokenPreview = 20

// printRequest shows the user what to do. In json mode it goes to stderr
// so stdout carries only the token. Fields the user would struggle with are
// still shown, with a warning.
func (a *app) printRequest(req *deviceauth.AuthenticationRequest) {
	if err := validation.ValidateUserCode(req.UserCode); err != nil {
		a.logger.Warn().Err(err).Msg("user code may be hard to enter")
	}
	if err := validation.ValidateVerificationURL(req.VerificationURL); err != nil {
		a.logger.Warn().Err(err).Msg("verification URL may not open in a browser")
	}

	w := a.stdout
	if a.output == "json" {
		w = a.stderr
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Authentication required")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  User code:        %s\n", req.UserCode)
	fmt.Fprintf(w, "  Verification URL: %s\n", req.VerificationURL)
	fmt.Fprintf(w, "  Expires at:       %s\n", req.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Visit the URL above and enter the code to authorize.")
}

func (a *app) printToken(title string, tok *deviceauth.AuthenticationToken) error {
	if a.output == "json" {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tok)
	}
	writeTokenText(a.stdout, title, tok)
	return nil
}

func writeTokenText(w io.Writer, title string, tok *deviceauth.AuthenticationToken) {
	scopes := make([]string, len(tok.Scopes))
	for i, s := range tok.Scopes {
		scopes[i] = s.String()
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "  Access token:  %s\n", preview(tok.AccessToken))
	fmt.Fprintf(w, "  Expires at:    %s\n", tok.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Scopes:        %s\n", strings.Join(scopes, ", "))
	if tok.CanRefresh() {
		fmt.Fprintf(w, "  Refresh token: %s\n", preview(tok.RefreshToken))
	}
}

func preview(token string) string {
	if len(token) <= tokenPreview {
		return token
	}
	return token[:tokenPreview] + "..."
}
