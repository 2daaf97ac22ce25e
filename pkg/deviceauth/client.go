package deviceauth

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/wrale/device-auth/internal/graphql"
)

var errConnClosed = errors.New("connection closed")

// New creates a flow controller for the instance at instanceURL, for
// example http://localhost:8080. Request/response calls go to
// <instanceURL>/graphql and subscriptions to the ws or wss /ws/graphql
// endpoint on the same host, unless WithStreamDialer supplies another push
// channel.
func New(instanceURL string, opts ...Option) (*Flow, error) {
	endpoints, err := graphql.ResolveEndpoints(instanceURL)
	if err != nil {
		return nil, err
	}

	f := newFlow(opts)
	f.dialer = &httpDialer{client: graphql.NewClient(endpoints.HTTP, f.httpClient)}
	if f.streamDialer == nil {
		f.streamDialer = &wsDialer{dialer: graphql.NewWSDialer(endpoints.WebSocket, f.httpClient)}
	}
	return f, nil
}

// graphqlRequest builds the wire request for op
func graphqlRequest(op Operation, vars map[string]string) graphql.Request {
	req := graphql.Request{
		Query:         op.Document,
		OperationName: op.Name,
	}
	if len(vars) > 0 {
		req.Variables = make(map[string]any, len(vars))
		for k, v := range vars {
			req.Variables[k] = v
		}
	}
	return req
}

// httpDialer hands out connections sharing one HTTP client
type httpDialer struct {
	client *graphql.Client
}

func (d *httpDialer) Dial(ctx context.Context) (Conn, error) {
	return &httpConn{client: d.client}, nil
}

type httpConn struct {
	client *graphql.Client

	closed atomic.Bool
}

func (c *httpConn) Execute(ctx context.Context, op Operation, vars map[string]string) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, errConnClosed
	}
	return c.client.Do(ctx, graphqlRequest(op, vars))
}

// Close ends the conn. The HTTP client and its keep-alive connections are
// shared by every conn of the flow and stay open.
func (c *httpConn) Close() error {
	c.closed.Store(true)
	return nil
}

type wsDialer struct {
	dialer *graphql.WSDialer
}

func (d *wsDialer) DialStream(ctx context.Context) (StreamConn, error) {
	conn, err := d.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *graphql.WSConn
}

func (c *wsConn) Subscribe(ctx context.Context, op Operation, vars map[string]string) (Stream, error) {
	sub, err := c.conn.Subscribe(ctx, graphqlRequest(op, vars))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
