// Package deviceauth implements the client side of a device authorization
// grant against a GraphQL instance.
//
// A flow starts with RequestAuthorization, which returns the user code and
// verification URL to show the user. WaitForApproval then blocks on a push
// subscription until the instance reports the token for that request.
// Authenticate composes both steps. RefreshToken renews a token
// independently of any flow.
package deviceauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// messageSubscriptionEnded is reported when the push channel closes before
// the instance delivers a token or an error
const messageSubscriptionEnded = "Subscription ended without receiving token"

// Flow runs device authorization flows. It holds no per-flow state, so a
// single Flow may run any number of flows concurrently.
type Flow struct {
	dialer       Dialer
	streamDialer StreamDialer
	logger       zerolog.Logger
	observer     func(State)
	now          func() time.Time

	// httpClient is consumed by New when building the default transport
	httpClient *http.Client
}

// NewFlow creates a flow controller using d for request/response calls and
// sd for the approval subscription.
func NewFlow(d Dialer, sd StreamDialer, opts ...Option) *Flow {
	f := newFlow(opts)
	f.dialer = d
	f.streamDialer = sd
	return f
}

func newFlow(opts []Option) *Flow {
	f := &Flow{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authenticate runs a complete flow. It requests authorization, hands the
// request to onRequest so the caller can show it to the user, then waits
// for approval. An error returned by onRequest is returned unchanged and
// the flow stops before waiting.
func (f *Flow) Authenticate(ctx context.Context, onRequest func(*AuthenticationRequest) error) (tok *AuthenticationToken, err error) {
	logger := f.logger
	defer func() {
		if err != nil {
			f.transition(logger, StateFailed)
		}
	}()

	f.transition(logger, StateAwaitingRequest)
	req, err := f.RequestAuthorization(ctx)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("request_id", req.ID).Logger()

	if onRequest != nil {
		if err := onRequest(req); err != nil {
			return nil, err
		}
	}

	f.transition(logger, StateAwaitingApproval)
	tok, err = f.WaitForApproval(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	f.transition(logger, StateApproved)
	return tok, nil
}

// RequestAuthorization starts a flow and returns the pending request. The
// connection used is closed before it returns.
func (f *Flow) RequestAuthorization(ctx context.Context) (*AuthenticationRequest, error) {
	conn, err := f.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to instance: %w", err)
	}
	defer f.close(conn, StartAuthenticationFlow)

	data, err := conn.Execute(ctx, StartAuthenticationFlow, nil)
	if err != nil {
		return nil, fmt.Errorf("starting authentication flow: %w", err)
	}

	res, err := decodeRequestResult(data)
	switch {
	case err != nil:
		return nil, err
	case res.err != nil:
		return nil, res.err
	case res.empty():
		return nil, &OperationError{
			Kind:    KindFlow,
			Reason:  ReasonNoRequest,
			Message: "No authentication request returned",
		}
	}

	f.logger.Debug().
		Str("request_id", res.value.ID).
		Time("expires_at", res.value.ExpiresAt).
		Msg("authentication request created")
	return res.value, nil
}

// WaitForApproval blocks until the instance delivers the token for the
// request identified by requestID, reports an error for it, or closes the
// subscription. Cancel ctx to stop waiting; the subscription is closed on
// every return path.
func (f *Flow) WaitForApproval(ctx context.Context, requestID string) (*AuthenticationToken, error) {
	if requestID == "" {
		return nil, ErrMissingRequestID
	}
	logger := f.logger.With().Str("request_id", requestID).Logger()

	conn, err := f.streamDialer.DialStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to push channel: %w", err)
	}
	defer f.close(conn, CreatedAuthenticationToken)

	stream, err := conn.Subscribe(ctx, CreatedAuthenticationToken, map[string]string{varRequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("subscribing to token creation: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("waiting for token: %w", err)
		}

		data, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, &OperationError{Kind: KindAuthentication, Message: messageSubscriptionEnded}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return nil, fmt.Errorf("waiting for token: %w", err)
		}

		res, err := decodeTokenResult(CreatedAuthenticationToken, KindAuthentication, data)
		if err != nil {
			return nil, err
		}

		// Notifications for other requests never satisfy this one
		if res.requestID != "" && res.requestID != requestID {
			logger.Debug().Str("notified_id", res.requestID).Msg("ignoring notification for another request")
			continue
		}

		switch {
		case res.err != nil:
			return nil, res.err
		case res.value != nil:
			logger.Debug().
				Time("expires_at", res.value.ExpiresAt).
				Int("scopes", len(res.value.Scopes)).
				Msg("authentication token received")
			return res.value, nil
		}
		logger.Debug().Msg("ignoring empty notification")
	}
}

// RefreshToken exchanges refreshToken for a new token. It does not depend
// on any previous flow.
func (f *Flow) RefreshToken(ctx context.Context, refreshToken string) (*AuthenticationToken, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	conn, err := f.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to instance: %w", err)
	}
	defer f.close(conn, RefreshAuthenticationToken)

	data, err := conn.Execute(ctx, RefreshAuthenticationToken, map[string]string{varRefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	res, err := decodeTokenResult(RefreshAuthenticationToken, KindRefresh, data)
	switch {
	case err != nil:
		return nil, err
	case res.err != nil:
		return nil, res.err
	case res.empty():
		return nil, &OperationError{
			Kind:    KindRefresh,
			Reason:  ReasonNoToken,
			Message: "No token returned from refresh",
		}
	}

	f.logger.Debug().Time("expires_at", res.value.ExpiresAt).Msg("token refreshed")
	return res.value, nil
}

func (f *Flow) transition(logger zerolog.Logger, s State) {
	logger.Debug().Str("state", s.String()).Msg("device flow transition")
	if f.observer != nil {
		f.observer(s)
	}
}

func (f *Flow) close(c io.Closer, op Operation) {
	if err := c.Close(); err != nil {
		f.logger.Debug().Err(err).Str("operation", op.Name).Msg("closing connection")
	}
}
