// Package testserver runs an in-process fake instance that speaks GraphQL
// over HTTP and graphql-transport-ws, for tests of the client.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wrale/device-auth/internal/graphql"
)

// topicBuffer is how many notifications a request id holds before a
// subscriber attaches
const topicBuffer = 64

// ExecFunc answers a request/response operation with response data or
// GraphQL errors
type ExecFunc func(vars map[string]any) (any, graphql.Errors)

// Stats counts traffic seen by the server
type Stats struct {
	HTTPRequests int
	WSOpened     int
	WSClosed     int
	Subscribes   int
}

// Server is a fake instance
type Server struct {
	// URL is the instance base address, e.g. http://127.0.0.1:port
	URL string

	srv *httptest.Server

	mu     sync.Mutex
	exec   map[string]ExecFunc
	topics map[string]*topic
	stats  Stats
	flows  *deviceFlows
	vars   []map[string]any
}

type frame struct {
	data any
	errs graphql.Errors
}

type topic struct {
	ch     chan frame
	closed bool
}

// New starts a server that is closed when t finishes
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		exec:   make(map[string]ExecFunc),
		topics: make(map[string]*topic),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.With(middleware.AllowContentType("application/json")).Post(graphql.HTTPPath, s.serveHTTP)
	r.Get(graphql.WebSocketPath, s.serveWS)
	r.Get(VerificationPath, s.handleVerifyForm)
	r.Post(VerificationPath, s.handleVerifySubmit)

	s.srv = httptest.NewServer(r)
	s.URL = s.srv.URL
	t.Cleanup(s.Close)
	return s
}

// Close shuts the server down
func (s *Server) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// Handle registers fn for the operation named name
func (s *Server) Handle(name string, fn ExecFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exec[name] = fn
}

// Notify queues data as the next result for subscriptions on requestID
func (s *Server) Notify(requestID string, data any) {
	s.push(requestID, frame{data: data})
}

// NotifyErrors queues a GraphQL error frame for requestID
func (s *Server) NotifyErrors(requestID string, errs graphql.Errors) {
	s.push(requestID, frame{errs: errs})
}

// Complete ends the subscriptions on requestID once queued results drain
func (s *Server) Complete(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp := s.topicLocked(requestID)
	if !tp.closed {
		tp.closed = true
		close(tp.ch)
	}
}

// Stats returns a snapshot of the traffic counters
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Variables returns the variables of every request/response operation
// received so far, in order
func (s *Server) Variables() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.vars...)
}

func (s *Server) push(requestID string, f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp := s.topicLocked(requestID)
	if tp.closed {
		return
	}
	select {
	case tp.ch <- f:
	default:
		panic("testserver: notification buffer full for " + requestID)
	}
}

func (s *Server) topicLocked(requestID string) *topic {
	tp, ok := s.topics[requestID]
	if !ok {
		tp = &topic{ch: make(chan frame, topicBuffer)}
		s.topics[requestID] = tp
	}
	return tp
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphql.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.stats.HTTPRequests++
	s.vars = append(s.vars, req.Variables)
	fn, ok := s.exec[req.OperationName]
	s.mu.Unlock()

	var resp graphql.Response
	if !ok {
		resp.Errors = graphql.Errors{{Message: "unknown operation " + req.OperationName}}
	} else {
		data, errs := fn(req.Variables)
		resp.Errors = errs
		if data != nil {
			raw, err := json.Marshal(data)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			resp.Data = raw
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
