// Package integration runs the device flow against a live instance.
//
// Tests are skipped unless DEVICE_AUTH_TEST_INSTANCE_URL names the instance.
// Approval needs a human, so the full flow only runs with
// DEVICE_AUTH_TEST_INTERACTIVE=1; refresh runs when
// DEVICE_AUTH_TEST_REFRESH_TOKEN is set.
package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrale/device-auth/internal/graphql"
	"github.com/wrale/device-auth/pkg/deviceauth"
)

// Environment consulted by the suite
const (
	EnvInstanceURL  = "DEVICE_AUTH_TEST_INSTANCE_URL"
	EnvInteractive  = "DEVICE_AUTH_TEST_INTERACTIVE"
	EnvRefreshToken = "DEVICE_AUTH_TEST_REFRESH_TOKEN"
)

// Timeouts and delays
const (
	ServiceTimeout  = 60 * time.Second
	ApprovalTimeout = 5 * time.Minute
	RetryInterval   = 2 * time.Second
)

// TestSuite provides shared functionality for integration tests
type TestSuite struct {
	T           *testing.T
	Ctx         context.Context
	InstanceURL string
	Flow        *deviceauth.Flow
}

// NewSuite creates a suite for the configured instance, or skips the test
func NewSuite(t *testing.T) *TestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	instanceURL := os.Getenv(EnvInstanceURL)
	if instanceURL == "" {
		t.Skipf("Skipping integration test: %s not set", EnvInstanceURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout)
	t.Cleanup(cancel)

	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	flow, err := deviceauth.New(instanceURL,
		deviceauth.WithLogger(logger),
		deviceauth.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	)
	if err != nil {
		t.Fatalf("Invalid %s: %v", EnvInstanceURL, err)
	}

	return &TestSuite{
		T:           t,
		Ctx:         ctx,
		InstanceURL: instanceURL,
		Flow:        flow,
	}
}

// WaitForInstance waits until the GraphQL endpoint answers. Any GraphQL
// response, including one carrying errors, counts as up.
func (s *TestSuite) WaitForInstance() error {
	endpoints, err := graphql.ResolveEndpoints(s.InstanceURL)
	if err != nil {
		return err
	}
	client := graphql.NewClient(endpoints.HTTP, &http.Client{Timeout: 5 * time.Second})

	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()

	for {
		_, lastErr := client.Do(s.Ctx, graphql.Request{Query: "query Ping { __typename }", OperationName: "Ping"})
		var gqlErrs graphql.Errors
		if lastErr == nil || errors.As(lastErr, &gqlErrs) {
			return nil
		}

		select {
		case <-s.Ctx.Done():
			return fmt.Errorf("timeout waiting for instance: %w", lastErr)
		case <-ticker.C:
			continue
		}
	}
}
