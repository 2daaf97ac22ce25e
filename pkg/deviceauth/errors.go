package deviceauth

import (
	"errors"
	"fmt"
)

// Errors raised by the client itself rather than reported by the server
var (
	// ErrMalformedResponse indicates a response without the expected payload
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnknownScope indicates a scope outside the known enumeration
	ErrUnknownScope = errors.New("unknown scope")

	// ErrNoRefreshToken indicates a refresh was attempted without a refresh token
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrMissingRequestID indicates a wait was attempted without a correlation id
	ErrMissingRequestID = errors.New("missing request id")
)

// Sentinels matched by OperationError.Is, one per Kind
var (
	ErrAuthenticationFlow = errors.New("authentication flow failed")
	ErrAuthentication     = errors.New("authentication failed")
	ErrTokenRefresh       = errors.New("token refresh failed")
)

// Reasons used when the server omits the payload entirely
const (
	ReasonNoRequest = "NO_REQUEST"
	ReasonNoToken   = "NO_TOKEN"
	ReasonUnknown   = "UNKNOWN"
)

// Kind identifies the operation that produced an OperationError
type Kind int

const (
	// KindFlow is a failure to start the flow
	KindFlow Kind = iota + 1
	// KindAuthentication is a failure while waiting for approval
	KindAuthentication
	// KindRefresh is a failure to refresh a token
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindFlow:
		return "authentication flow"
	case KindAuthentication:
		return "authentication"
	case KindRefresh:
		return "token refresh"
	default:
		return "unknown"
	}
}

// defaultMessage is used when the server reports an error without a message
func (k Kind) defaultMessage() string {
	switch k {
	case KindFlow:
		return "Authentication flow failed"
	case KindAuthentication:
		return "Token retrieval failed"
	case KindRefresh:
		return "Token refresh failed"
	default:
		return "Operation failed"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindFlow:
		return ErrAuthenticationFlow
	case KindAuthentication:
		return ErrAuthentication
	case KindRefresh:
		return ErrTokenRefresh
	default:
		return nil
	}
}

// OperationError is a failure reported by the server, or the server
// omitting the payload an operation requires.
type OperationError struct {
	Kind    Kind
	Reason  string
	Message string
}

func (e *OperationError) Error() string {
	if e.Reason == "" {
		return e.Message
	}
	return e.Reason + ": " + e.Message
}

// Is matches the sentinel for the error's Kind
func (e *OperationError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// DecodeError indicates a response that violates the wire contract
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decoding response: %v", e.Err)
	}
	return fmt.Sprintf("decoding %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
