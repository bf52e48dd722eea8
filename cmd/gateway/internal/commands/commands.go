package commands

import (
	"net/http"
	"time"
)

type Globals struct {
	Debug   bool
	Version string
}

// configureHTTPServer builds the server for the gateway's traffic shape.
// There is no WriteTimeout: SSE responses stay open for the life of the
// subscription, and a write deadline would sever them mid-stream.
func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
