package deviceauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// errTransport is returned by fakes configured to fail
var errTransport = errors.New("transport unavailable")

// eventLog records connection lifecycle events across fakes in order
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type executeCall struct {
	op   string
	vars map[string]string
}

// mockDialer answers Execute with respond
type mockDialer struct {
	log     *eventLog
	respond func(op Operation, vars map[string]string) (json.RawMessage, error)
	dialErr error

	mu    sync.Mutex
	conns []*mockConn
	calls []executeCall
}

func (d *mockDialer) Dial(ctx context.Context) (Conn, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &mockConn{dialer: d}
	d.conns = append(d.conns, c)
	d.logf("dial")
	return c, nil
}

func (d *mockDialer) logf(format string, args ...any) {
	if d.log != nil {
		d.log.add(format, args...)
	}
}

// closes returns how many connections were opened and how many Close calls
// were made in total
func (d *mockDialer) closes() (opened, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		closed += c.closed
	}
	return len(d.conns), closed
}

type mockConn struct {
	dialer *mockDialer
	closed int
}

func (c *mockConn) Execute(ctx context.Context, op Operation, vars map[string]string) (json.RawMessage, error) {
	c.dialer.mu.Lock()
	c.dialer.calls = append(c.dialer.calls, executeCall{op: op.Name, vars: vars})
	c.dialer.mu.Unlock()

	if c.dialer.respond == nil {
		return nil, errTransport
	}
	return c.dialer.respond(op, vars)
}

func (c *mockConn) Close() error {
	c.dialer.mu.Lock()
	defer c.dialer.mu.Unlock()
	c.closed++
	c.dialer.logf("close")
	return nil
}

// mockStreamDialer delivers messages in order on every subscription, then
// either ends the stream or blocks until the context is done
type mockStreamDialer struct {
	log          *eventLog
	messages     []string
	block        bool
	dialErr      error
	subscribeErr error
	nextErr      error

	mu    sync.Mutex
	conns []*mockStreamConn
}

func (d *mockStreamDialer) DialStream(ctx context.Context) (StreamConn, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &mockStreamConn{dialer: d}
	d.conns = append(d.conns, c)
	if d.log != nil {
		d.log.add("dial stream")
	}
	return c, nil
}

func (d *mockStreamDialer) closes() (opened, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		closed += c.closed
	}
	return len(d.conns), closed
}

// subscriptions returns the variables of every subscription made
func (d *mockStreamDialer) subscriptions() []map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var vars []map[string]string
	for _, c := range d.conns {
		if c.vars != nil {
			vars = append(vars, c.vars)
		}
	}
	return vars
}

type mockStreamConn struct {
	dialer *mockStreamDialer
	vars   map[string]string
	closed int
}

func (c *mockStreamConn) Subscribe(ctx context.Context, op Operation, vars map[string]string) (Stream, error) {
	if c.dialer.subscribeErr != nil {
		return nil, c.dialer.subscribeErr
	}
	c.dialer.mu.Lock()
	c.vars = vars
	c.dialer.mu.Unlock()

	msgs := make([]json.RawMessage, len(c.dialer.messages))
	for i, m := range c.dialer.messages {
		msgs[i] = json.RawMessage(m)
	}
	return &mockStream{messages: msgs, block: c.dialer.block, err: c.dialer.nextErr}, nil
}

func (c *mockStreamConn) Close() error {
	c.dialer.mu.Lock()
	defer c.dialer.mu.Unlock()
	c.closed++
	if c.dialer.log != nil {
		c.dialer.log.add("close stream")
	}
	return nil
}

type mockStream struct {
	messages []json.RawMessage
	block    bool
	err      error
}

func (s *mockStream) Next(ctx context.Context) (json.RawMessage, error) {
	if len(s.messages) > 0 {
		m := s.messages[0]
		s.messages = s.messages[1:]
		return m, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, io.EOF
}

// respondWith answers every Execute with data
func respondWith(data string) func(Operation, map[string]string) (json.RawMessage, error) {
	return func(Operation, map[string]string) (json.RawMessage, error) {
		return json.RawMessage(data), nil
	}
}

// Response fixtures

const (
	startFlowOK = `{"startAuthenticationFlow":{"request":{"id":"r1","userCode":"ABCD-1234","verificationUrl":"https://x/verify","expiresAt":"2030-01-01T00:00:00Z"},"error":null}}`

	tokenCreatedOK = `{"createdAuthenticationToken":{"token":{"accessToken":"tok_abc","expiresAt":"2030-01-01T01:00:00Z","scopes":["OFFLINE"]},"error":null}}`
)

func startFlowWith(request, wireErr string) string {
	return fmt.Sprintf(`{"startAuthenticationFlow":{"request":%s,"error":%s}}`, request, wireErr)
}

func tokenPayload(field, token, wireErr string) string {
	return fmt.Sprintf(`{%q:{"token":%s,"error":%s}}`, field, token, wireErr)
}

func refreshWith(token, wireErr string) string {
	return tokenPayload(RefreshAuthenticationToken.Field, token, wireErr)
}

func notificationWith(token, wireErr string) string {
	return tokenPayload(CreatedAuthenticationToken.Field, token, wireErr)
}
