package integration

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wrale/device-auth/internal/validation"
	"github.com/wrale/device-auth/pkg/deviceauth"
)

// validateRequest checks a request is usable for display
func validateRequest(t *testing.T, req *deviceauth.AuthenticationRequest) {
	t.Helper()

	var issues []string

	if req.ID == "" {
		issues = append(issues, "request id is required for correlation")
	}
	if err := validation.ValidateUserCode(req.UserCode); err != nil {
		issues = append(issues, fmt.Sprintf("user code: %v", err))
	}
	if err := validation.ValidateVerificationURL(req.VerificationURL); err != nil {
		issues = append(issues, fmt.Sprintf("verification url: %v", err))
	}
	if !req.ExpiresAt.After(time.Now()) {
		issues = append(issues, fmt.Sprintf("request already expired at %s", req.ExpiresAt))
	}
	if req.ExpiresAt.Location() != time.UTC {
		issues = append(issues, "expiry must be normalized to UTC")
	}

	if len(issues) > 0 {
		t.Errorf("Authentication request validation failed:\n%s", strings.Join(issues, "\n"))
	}
}

// validateToken checks a freshly issued token
func validateToken(t *testing.T, tok *deviceauth.AuthenticationToken) {
	t.Helper()

	var issues []string

	if tok.AccessToken == "" {
		issues = append(issues, "access token is required")
	}
	if tok.IsExpired() {
		issues = append(issues, fmt.Sprintf("token already expired at %s", tok.ExpiresAt))
	}
	if tok.HasScope(deviceauth.ScopeOffline) && !tok.CanRefresh() {
		t.Log("OFFLINE scope granted without a refresh token")
	}

	if len(issues) > 0 {
		t.Errorf("Authentication token validation failed:\n%s", strings.Join(issues, "\n"))
	}
}
