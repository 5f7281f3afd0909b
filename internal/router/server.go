package router

import (
	"net/http"
	"time"
)

// NewServer creates a new HTTP server with the router configured. Write
// timeout is left unset because websocket connections outlive any sane
// response deadline.
func NewServer(addr string, h *Handlers) *http.Server {
	router := NewRouter(h)
	return &http.Server{
		Addr:        addr,
		Handler:     router.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}
