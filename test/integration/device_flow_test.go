package integration

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/wrale/device-auth/pkg/deviceauth"
)

func TestDeviceFlow(t *testing.T) {
	suite := NewSuite(t)

	if err := suite.WaitForInstance(); err != nil {
		t.Fatalf("Failed waiting for instance: %v", err)
	}

	t.Run("authentication request", func(t *testing.T) {
		req, err := suite.Flow.RequestAuthorization(suite.Ctx)
		if err != nil {
			t.Fatalf("RequestAuthorization failed: %v", err)
		}
		validateRequest(t, req)

		// Nobody approves this request, so the wait ends with the deadline
		t.Run("pending approval", func(t *testing.T) {
			ctx, cancel := context.WithTimeout(suite.Ctx, 3*time.Second)
			defer cancel()

			_, err := suite.Flow.WaitForApproval(ctx, req.ID)
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("WaitForApproval error = %v, want deadline exceeded", err)
			}
		})
	})

	t.Run("interactive approval", func(t *testing.T) {
		if os.Getenv(EnvInteractive) != "1" {
			t.Skipf("set %s=1 to approve a request by hand", EnvInteractive)
		}

		ctx, cancel := context.WithTimeout(context.Background(), ApprovalTimeout)
		defer cancel()

		tok, err := suite.Flow.Authenticate(ctx, func(req *deviceauth.AuthenticationRequest) error {
			t.Logf("Visit %s and enter %s", req.VerificationURL, req.UserCode)
			return nil
		})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		validateToken(t, tok)
	})
}

func TestRefresh(t *testing.T) {
	suite := NewSuite(t)

	refreshToken := os.Getenv(EnvRefreshToken)
	if refreshToken == "" {
		t.Skipf("set %s to exercise refresh", EnvRefreshToken)
	}
	if err := suite.WaitForInstance(); err != nil {
		t.Fatalf("Failed waiting for instance: %v", err)
	}

	t.Run("valid refresh token", func(t *testing.T) {
		tok, err := suite.Flow.RefreshToken(suite.Ctx, refreshToken)
		if err != nil {
			t.Fatalf("RefreshToken failed: %v", err)
		}
		validateToken(t, tok)
	})

	t.Run("invalid refresh token", func(t *testing.T) {
		_, err := suite.Flow.RefreshToken(suite.Ctx, "invalid-"+refreshToken)

		var opErr *deviceauth.OperationError
		if !errors.As(err, &opErr) {
			t.Fatalf("RefreshToken error = %v, want *OperationError", err)
		}
		if !errors.Is(err, deviceauth.ErrTokenRefresh) {
			t.Errorf("errors.Is(ErrTokenRefresh) = false for %v", err)
		}
	})
}
