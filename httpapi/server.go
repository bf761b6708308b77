package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server owns the daemon's HTTP listener lifecycle.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, h *Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Shutdown. A clean shutdown is not an error.
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
