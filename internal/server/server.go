package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/job"
	"github.com/ahmethakanbesel/oasis-api/internal/observation"
)

type Server struct {
	srv *http.Server
}

// New creates a server whose requests derive from baseCtx, so cancelling it
// ends in-flight requests during shutdown.
func New(baseCtx context.Context, port string, obsSvc *observation.Service, jobSvc *job.Service, pool *job.WorkerPool) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: NewHandler(obsSvc, jobSvc, pool),
			BaseContext: func(_ net.Listener) context.Context {
				return baseCtx
			},
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       120 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server")
	return s.srv.Shutdown(ctx)
}
