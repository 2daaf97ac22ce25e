// Package redisstream delivers subscription results over Redis pub/sub.
//
// Each subscription listens on its own channel, named after the operation's
// root field and the request id it waits for. Messages use the
// graphql-transport-ws frame envelope: next and error frames carry results,
// and a complete frame ends the subscription.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/wrale/device-auth/internal/graphql"
	"github.com/wrale/device-auth/pkg/deviceauth"
)

// DefaultPrefix is prepended to every channel name
const DefaultPrefix = "deviceauth:"

// requestIDVar is the subscription variable that selects the channel
const requestIDVar = "requestId"

var (
	// ErrMissingRequestID indicates a subscription without a request id
	ErrMissingRequestID = errors.New("redisstream: subscription has no request id")

	// ErrSubscriptionActive indicates a second subscription on one connection
	ErrSubscriptionActive = errors.New("redisstream: connection already carries a subscription")
)

// Channel returns the pub/sub channel for field and requestID
func Channel(prefix, field, requestID string) string {
	return fmt.Sprintf("%s%s:%s", prefix, field, requestID)
}

// Dialer opens push connections backed by a Redis client
type Dialer struct {
	client redis.UniversalClient
	prefix string
}

// NewDialer creates a dialer. An empty prefix uses DefaultPrefix.
func NewDialer(client redis.UniversalClient, prefix string) *Dialer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Dialer{client: client, prefix: prefix}
}

// DialStream verifies Redis is reachable and returns a connection
func (d *Dialer) DialStream(ctx context.Context) (deviceauth.StreamConn, error) {
	if err := d.CheckHealth(ctx); err != nil {
		return nil, err
	}
	return &conn{dialer: d}, nil
}

// CheckHealth verifies Redis connectivity. Call it at startup to fail
// before a flow begins rather than when the wait starts.
func (d *Dialer) CheckHealth(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

type conn struct {
	dialer *Dialer
	pubsub *redis.PubSub
}

func (c *conn) Subscribe(ctx context.Context, op deviceauth.Operation, vars map[string]string) (deviceauth.Stream, error) {
	if c.pubsub != nil {
		return nil, ErrSubscriptionActive
	}
	requestID := vars[requestIDVar]
	if requestID == "" {
		return nil, ErrMissingRequestID
	}

	channel := Channel(c.dialer.prefix, op.Field, requestID)
	pubsub := c.dialer.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so no publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	c.pubsub = pubsub
	return &stream{messages: pubsub.Channel()}, nil
}

func (c *conn) Close() error {
	if c.pubsub == nil {
		return nil
	}
	err := c.pubsub.Close()
	c.pubsub = nil
	return err
}

type stream struct {
	messages <-chan *redis.Message
	done     bool
}

func (s *stream) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		if s.done {
			return nil, io.EOF
		}

		var msg *redis.Message
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case m, ok := <-s.messages:
			if !ok {
				s.done = true
				return nil, io.EOF
			}
			msg = m
		}

		var frame graphql.Message
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			return nil, fmt.Errorf("parsing message on %s: %w", msg.Channel, err)
		}

		switch frame.Type {
		case graphql.MsgNext:
			return frame.Result()
		case graphql.MsgError:
			s.done = true
			return frame.Result()
		case graphql.MsgComplete:
			s.done = true
			return nil, io.EOF
		}
	}
}
