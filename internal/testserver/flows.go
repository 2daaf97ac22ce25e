package testserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wrale/device-auth/internal/graphql"
	"github.com/wrale/device-auth/internal/validation"
)

// Wire field names of the device flow operations
const (
	opStartFlow     = "StartAuthenticationFlow"
	fieldStartFlow  = "startAuthenticationFlow"
	fieldCreatedTok = "createdAuthenticationToken"
)

// VerificationPath is where the verification page is served
const VerificationPath = "/device"

// Errors returned when a user code cannot be resolved
var (
	ErrFlowNotServed   = errors.New("device flow not served")
	ErrUnknownUserCode = errors.New("unknown user code")
	ErrCodeExpired     = errors.New("user code expired")
)

type pendingRequest struct {
	id        string
	expiresAt time.Time
}

type deviceFlows struct {
	ttl       time.Duration
	pending   map[string]pendingRequest // normalized user code -> request
	pageToken map[string]any
}

// ServeDeviceFlow answers StartAuthenticationFlow with a new request on
// every call. Requests expire after ttl and are approved or denied by user
// code with Approve and Deny, or through the verification page.
func (s *Server) ServeDeviceFlow(ttl time.Duration) {
	s.mu.Lock()
	s.flows = &deviceFlows{ttl: ttl, pending: make(map[string]pendingRequest)}
	s.mu.Unlock()

	s.Handle(opStartFlow, func(map[string]any) (any, graphql.Errors) {
		s.mu.Lock()
		defer s.mu.Unlock()

		userCode, err := uniqueUserCode(func(code string) bool {
			_, ok := s.flows.pending[code]
			return ok
		})
		if err != nil {
			return nil, graphql.Errors{{Message: err.Error()}}
		}

		req := pendingRequest{id: uuid.NewString(), expiresAt: time.Now().Add(ttl).UTC()}
		s.flows.pending[validation.NormalizeCode(userCode)] = req

		return map[string]any{
			fieldStartFlow: map[string]any{
				"request": map[string]any{
					"id":              req.id,
					"userCode":        userCode,
					"verificationUrl": s.URL + VerificationPath,
					"expiresAt":       req.expiresAt.Format(time.RFC3339Nano),
				},
				"error": nil,
			},
		}, nil
	})
}

// Approve delivers token to the request the user code belongs to. The code
// is matched the way a user would type it, ignoring case and separators.
func (s *Server) Approve(userCode string, token map[string]any) (string, error) {
	return s.resolve(userCode, map[string]any{"token": token, "error": nil})
}

// Deny reports an authentication error to the request the user code
// belongs to
func (s *Server) Deny(userCode string, wireErr map[string]any) (string, error) {
	return s.resolve(userCode, map[string]any{"token": nil, "error": wireErr})
}

func (s *Server) resolve(userCode string, payload map[string]any) (string, error) {
	s.mu.Lock()
	if s.flows == nil {
		s.mu.Unlock()
		return "", ErrFlowNotServed
	}
	key := validation.NormalizeCode(userCode)
	req, ok := s.flows.pending[key]
	delete(s.flows.pending, key)
	s.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownUserCode, userCode)
	}
	if !time.Now().Before(req.expiresAt) {
		return "", fmt.Errorf("%w %q", ErrCodeExpired, userCode)
	}

	s.Notify(req.id, map[string]any{fieldCreatedTok: payload})
	return req.id, nil
}
