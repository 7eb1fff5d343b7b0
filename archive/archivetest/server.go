// Package archivetest provides an in-memory archive host for tests.
package archivetest

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

type route struct {
	status int
	body   []byte
}

// Server is a fake archive serving canned responses by path. Unknown paths
// answer 404. It records every requested path in order.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]route
	requests []string
}

// NewServer starts a fake archive. Call Close when done.
func NewServer() *Server {
	s := &Server{routes: make(map[string]route)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle registers a 200 response for path.
func (s *Server) Handle(path string, body []byte) *Server {
	return s.HandleStatus(path, http.StatusOK, body)
}

// HandleString registers a 200 response for path.
func (s *Server) HandleString(path, body string) *Server {
	return s.Handle(path, []byte(body))
}

// HandleStatus registers a response with an explicit status for path.
func (s *Server) HandleStatus(path string, status int, body []byte) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = route{status: status, body: body}
	return s
}

// Requests returns the paths requested so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many times path was requested.
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.requests {
		if p == path {
			n++
		}
	}
	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	rt, ok := s.routes[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(rt.status)
	_, _ = w.Write(rt.body)
}
