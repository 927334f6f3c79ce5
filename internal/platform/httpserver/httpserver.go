package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts suited to form-sized requests and
// file downloads.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}
