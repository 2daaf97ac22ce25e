package deviceauth

import (
	"context"
	"encoding/json"
)

// Dialer opens request/response connections to an instance
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is a request/response connection
type Conn interface {
	// Execute sends op and returns the GraphQL response data
	Execute(ctx context.Context, op Operation, vars map[string]string) (json.RawMessage, error)
	Close() error
}

// StreamDialer opens push connections to an instance
type StreamDialer interface {
	DialStream(ctx context.Context) (StreamConn, error)
}

// StreamConn is a push connection carrying subscriptions
type StreamConn interface {
	Subscribe(ctx context.Context, op Operation, vars map[string]string) (Stream, error)
	Close() error
}

// Stream delivers the messages of one subscription in arrival order
type Stream interface {
	// Next blocks until a message arrives and returns its GraphQL response
	// data. It returns io.EOF once the server completes the subscription.
	Next(ctx context.Context) (json.RawMessage, error)
}
