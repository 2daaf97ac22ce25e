package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrale/device-auth/internal/graphql"
	"github.com/wrale/device-auth/internal/testserver"
	"github.com/wrale/device-auth/pkg/deviceauth"
)

var userCodeLine = regexp.MustCompile(`User code:\s+(\S+)`)

// approvingWriter approves every user code printed through it, playing the
// user who opens the verification URL in a browser
type approvingWriter struct {
	srv   *testserver.Server
	token map[string]any

	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

func (w *approvingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	if m := userCodeLine.FindSubmatch(p); m != nil {
		if _, err := w.srv.Approve(string(m[1]), w.token); err != nil {
			w.err = err
		}
	}
	return len(p), nil
}

func (w *approvingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func liveToken() map[string]any {
	return map[string]any{
		"accessToken":  "tok_0123456789abcdefghijklmnop",
		"expiresAt":    "2030-01-01T00:00:00Z",
		"refreshToken": "ref_0123456789abcdefghijklmnop",
		"scopes":       []string{"ASSISTANT", "OFFLINE"},
	}
}

func TestRunLogin(t *testing.T) {
	srv := testserver.New(t)
	srv.ServeDeviceFlow(time.Minute)
	t.Setenv("DEVICE_AUTH_INSTANCE_URL", srv.URL)

	stdout := &approvingWriter{srv: srv, token: liveToken()}
	var stderr bytes.Buffer

	code := run([]string{"login"}, stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())
	require.NoError(t, stdout.err)

	out := stdout.String()
	assert.Contains(t, out, "Verification URL: "+srv.URL+"/device")
	assert.Contains(t, out, "Authentication successful")
	assert.Contains(t, out, "Access token:  tok_0123456789abcdef...")
	assert.Contains(t, out, "Scopes:        ASSISTANT, OFFLINE")
	assert.Contains(t, out, "Refresh token: ref_0123456789abcdef...")
	assert.NotContains(t, out, "tok_0123456789abcdefghijklmnop")
}

func TestRunLoginRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := testserver.New(t)
	srv.ServeDeviceFlow(time.Minute)

	t.Setenv("DEVICE_AUTH_PUSH_BACKEND", "redis")
	t.Setenv("DEVICE_AUTH_REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("DEVICE_AUTH_LOGIN_TIMEOUT", "200ms")

	// Nothing publishes the approval, so login times out
	var stdout, stderr bytes.Buffer
	code := run([]string{"login", "--instance", srv.URL}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "login failed")
	assert.Contains(t, stdout.String(), "User code:")
	assert.Zero(t, srv.Stats().WSOpened)
}

func TestRunLoginRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	srv := testserver.New(t)
	srv.ServeDeviceFlow(time.Minute)

	t.Setenv("DEVICE_AUTH_PUSH_BACKEND", "redis")
	t.Setenv("DEVICE_AUTH_REDIS_URL", "redis://"+addr)
	t.Setenv("DEVICE_AUTH_REQUEST_TIMEOUT", "1s")

	var stdout, stderr bytes.Buffer
	code := run([]string{"login", "--instance", srv.URL}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "redis health check failed")
	assert.NotContains(t, stdout.String(), "User code:")
	assert.Zero(t, srv.Stats().HTTPRequests, "no flow is started without a push channel")
}

func TestPrintRequest(t *testing.T) {
	tests := []struct {
		name         string
		req          deviceauth.AuthenticationRequest
		wantWarnings []string
	}{
		{
			name: "plain",
			req: deviceauth.AuthenticationRequest{
				ID:              "r1",
				UserCode:        "BCDF-GHJK",
				VerificationURL: "https://instance.example.com/device",
				ExpiresAt:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "unusual fields",
			req: deviceauth.AuthenticationRequest{
				ID:              "r1",
				UserCode:        "BCDF GHJK",
				VerificationURL: "caido://verify",
				ExpiresAt:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			wantWarnings: []string{"user code may be hard to enter", "verification URL may not open in a browser"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, logs bytes.Buffer
			a := &app{stdout: &stdout, stderr: &logs, output: "text", logger: zerolog.New(&logs)}

			a.printRequest(&tt.req)

			assert.Contains(t, stdout.String(), "User code:        "+tt.req.UserCode)
			assert.Contains(t, stdout.String(), "Verification URL: "+tt.req.VerificationURL)
			assert.Contains(t, stdout.String(), "Expires at:       2030-01-01T00:00:00Z")
			if len(tt.wantWarnings) == 0 {
				assert.Empty(t, logs.String())
			}
			for _, w := range tt.wantWarnings {
				assert.Contains(t, logs.String(), w)
			}
		})
	}
}

func TestRunRefresh(t *testing.T) {
	srv := testserver.New(t)
	srv.Handle(deviceauth.RefreshAuthenticationToken.Name, func(vars map[string]any) (any, graphql.Errors) {
		payload := map[string]any{"token": nil, "error": map[string]any{"code": "AUTHENTICATION", "reason": "EXPIRED"}}
		if vars["refreshToken"] == "ref_good" {
			payload = map[string]any{"token": liveToken(), "error": nil}
		}
		return map[string]any{"refreshAuthenticationToken": payload}, nil
	})
	t.Setenv("DEVICE_AUTH_INSTANCE_URL", srv.URL)

	t.Run("json output", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"refresh", "--refresh-token", "ref_good", "-o", "json"}, &stdout, &stderr)
		require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

		var tok deviceauth.AuthenticationToken
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &tok))
		assert.Equal(t, "tok_0123456789abcdefghijklmnop", tok.AccessToken)
		assert.Equal(t, "ref_0123456789abcdefghijklmnop", tok.RefreshToken)
		assert.Equal(t, []deviceauth.Scope{deviceauth.ScopeAssistant, deviceauth.ScopeOffline}, tok.Scopes)
	})

	t.Run("token from environment", func(t *testing.T) {
		t.Setenv("DEVICE_AUTH_REFRESH_TOKEN", "ref_good")

		var stdout, stderr bytes.Buffer
		code := run([]string{"refresh"}, &stdout, &stderr)
		require.Equal(t, exitOK, code, "stderr: %s", stderr.String())
		assert.Contains(t, stdout.String(), "Token refreshed")
	})

	t.Run("rejected", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"refresh", "--refresh-token", "ref_stale"}, &stdout, &stderr)
		assert.Equal(t, exitAuthFailed, code)
		assert.Contains(t, stderr.String(), "refresh failed: EXPIRED: Token refresh failed")
	})

	t.Run("missing token", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"refresh"}, &stdout, &stderr)
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr.String(), "a refresh token is required")
	})
}

func TestRunInvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "output", args: []string{"refresh", "-o", "yaml"}, wantErr: `unknown output format "yaml"`},
		{name: "backend", args: []string{"login", "--push-backend", "kafka"}, wantErr: `unknown push backend "kafka"`},
		{name: "log level", args: []string{"login", "--log-level", "loud"}, wantErr: `invalid log level "loud"`},
		{name: "instance", args: []string{"login", "--instance", "ftp://example.com"}, wantErr: "unsupported scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			assert.Equal(t, exitError, code)
			assert.Contains(t, stderr.String(), tt.wantErr)
		})
	}
}

func TestExitCode(t *testing.T) {
	opErr := &deviceauth.OperationError{Kind: deviceauth.KindAuthentication, Message: "denied"}

	assert.Equal(t, exitAuthFailed, exitCode(opErr))
	assert.Equal(t, exitAuthFailed, exitCode(fmt.Errorf("login failed: %w", opErr)))
	assert.Equal(t, exitError, exitCode(errors.New("connection refused")))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	assert.Equal(t, "01234567890123456789", preview("01234567890123456789"))
	assert.Equal(t, "01234567890123456789...", preview("0123456789012345678901"))
}
