package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	// DefaultAckTimeout bounds the wait for connection_ack after connecting
	DefaultAckTimeout = 10 * time.Second

	// closeTimeout bounds the best-effort complete frame sent on Close
	closeTimeout = 2 * time.Second

	// readLimit caps a single frame
	readLimit = 1 << 20
)

// ErrSubscriptionActive is returned when a second subscription is started
// on a connection that already carries one
var ErrSubscriptionActive = errors.New("graphql: connection already carries a subscription")

// WSDialer opens graphql-transport-ws connections
type WSDialer struct {
	endpoint   string
	httpClient *http.Client
	ackTimeout time.Duration
}

// NewWSDialer creates a dialer for endpoint. A nil httpClient uses the
// default client for the handshake. The client's Timeout is ignored; the
// handshake is bounded by the context passed to Dial.
func NewWSDialer(endpoint string, httpClient *http.Client) *WSDialer {
	if httpClient != nil && httpClient.Timeout > 0 {
		c := *httpClient
		c.Timeout = 0
		httpClient = &c
	}
	return &WSDialer{
		endpoint:   endpoint,
		httpClient: httpClient,
		ackTimeout: DefaultAckTimeout,
	}
}

// Dial connects and completes connection_init/connection_ack
func (d *WSDialer) Dial(ctx context.Context) (*WSConn, error) {
	ws, _, err := websocket.Dial(ctx, d.endpoint, &websocket.DialOptions{
		HTTPClient:   d.httpClient,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.endpoint, err)
	}
	ws.SetReadLimit(readLimit)

	c := &WSConn{ws: ws}
	if err := c.init(ctx, d.ackTimeout); err != nil {
		ws.Close(websocket.StatusProtocolError, "connection not acknowledged")
		return nil, err
	}
	return c, nil
}

// WSConn is an acknowledged graphql-transport-ws connection. It carries at
// most one subscription at a time.
type WSConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	active *Subscription
}

func (c *WSConn) init(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := wsjson.Write(ctx, c.ws, Message{Type: MsgConnectionInit}); err != nil {
		return fmt.Errorf("sending connection_init: %w", err)
	}

	for {
		var msg Message
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			return fmt.Errorf("waiting for connection_ack: %w", err)
		}
		switch msg.Type {
		case MsgConnectionAck:
			return nil
		case MsgPing:
			if err := wsjson.Write(ctx, c.ws, Message{Type: MsgPong}); err != nil {
				return fmt.Errorf("sending pong: %w", err)
			}
		case MsgPong:
		default:
			return fmt.Errorf("waiting for connection_ack: unexpected %q message", msg.Type)
		}
	}
}

// Subscribe starts req and returns the subscription carrying its results
func (c *WSConn) Subscribe(ctx context.Context, req Request) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && !c.active.done {
		return nil, ErrSubscriptionActive
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling subscription: %w", err)
	}

	sub := &Subscription{id: uuid.NewString(), conn: c}
	if err := wsjson.Write(ctx, c.ws, Message{ID: sub.id, Type: MsgSubscribe, Payload: payload}); err != nil {
		return nil, fmt.Errorf("sending subscribe: %w", err)
	}

	c.active = sub
	return sub, nil
}

// Close completes the active subscription, if any, and closes the
// connection
func (c *WSConn) Close() error {
	c.mu.Lock()
	sub := c.active
	c.active = nil
	c.mu.Unlock()

	if sub != nil && !sub.done {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		// Best effort; the connection is closed either way
		_ = wsjson.Write(ctx, c.ws, Message{ID: sub.id, Type: MsgComplete})
		cancel()
	}

	err := c.ws.Close(websocket.StatusNormalClosure, "")
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

// Subscription is one running operation on a WSConn
type Subscription struct {
	id   string
	conn *WSConn
	done bool
}

// ID is the protocol id of the subscription
func (s *Subscription) ID() string {
	return s.id
}

// Next blocks until the server sends the next result. It returns io.EOF
// once the server completes the subscription or closes the connection
// normally. Cancelling ctx aborts the read and closes the connection.
func (s *Subscription) Next(ctx context.Context) (json.RawMessage, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		var msg Message
		if err := wsjson.Read(ctx, s.conn.ws, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.done = true
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading subscription: %w", err)
		}

		switch msg.Type {
		case MsgPing:
			if err := wsjson.Write(ctx, s.conn.ws, Message{Type: MsgPong}); err != nil {
				return nil, fmt.Errorf("sending pong: %w", err)
			}
			continue
		case MsgPong:
			continue
		}

		if msg.ID != s.id {
			continue
		}

		switch msg.Type {
		case MsgNext:
			return msg.Result()
		case MsgError:
			s.done = true
			return msg.Result()
		case MsgComplete:
			s.done = true
			return nil, io.EOF
		}
	}
}
