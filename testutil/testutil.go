// Package testutil provides testing helpers for exercising restq services
// against a fake HTTP API. It is import-cycle safe and can be used from any
// package.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest captures one request received by the fake server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
	Body   []byte
}

// Server is a fake API server with fluent route registration and request
// recording. Create one with NewServer, register routes, then Start it.
type Server struct {
	mu       sync.Mutex
	routes   map[string]route
	recorded []RecordedRequest
	ts       *httptest.Server
}

type route struct {
	status int
	body   string
	delay  func()
}

// NewServer creates an unstarted fake server.
func NewServer() *Server {
	return &Server{routes: make(map[string]route)}
}

// Route registers a canned response for "METHOD /path". It returns the
// server for chaining.
func (s *Server) Route(methodAndPath string, status int, body string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[methodAndPath] = route{status: status, body: body}
	return s
}

// RouteFunc registers a canned response that runs fn before replying, for
// tests that need to observe in-flight requests. It returns the server for
// chaining.
func (s *Server) RouteFunc(methodAndPath string, status int, body string, fn func()) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[methodAndPath] = route{status: status, body: body, delay: fn}
	return s
}

// Start launches the underlying httptest server. The caller must Close it.
func (s *Server) Start() *Server {
	s.ts = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URL returns the base URL of the running server.
func (s *Server) URL() string { return s.ts.URL }

// Close shuts the server down.
func (s *Server) Close() { s.ts.Close() }

// Requests returns a snapshot of all recorded requests.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.recorded))
	copy(out, s.recorded)
	return out
}

// LastRequest returns the most recently recorded request, or false if none
// was received.
func (s *Server) LastRequest() (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recorded) == 0 {
		return RecordedRequest{}, false
	}
	return s.recorded[len(s.recorded)-1], true
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	query := make(map[string]string)
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	s.mu.Lock()
	s.recorded = append(s.recorded, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  query,
		Header: r.Header.Clone(),
		Body:   body,
	})
	rt, ok := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"route not found"}`, http.StatusNotFound)
		return
	}
	if rt.delay != nil {
		rt.delay()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rt.status)
	io.WriteString(w, rt.body)
}
