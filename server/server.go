package server

import (
	"context"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP server hosting the websocket endpoints.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server on the given address.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout int) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     handler,
			ReadTimeout: time.Duration(readTimeout) * time.Second,
			// WriteTimeout is left unset: websocket connections are
			// long-lived and hijacked from the HTTP server anyway.
		},
	}
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// Shutdown stops accepting new connections and waits for the server to
// finish, up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
