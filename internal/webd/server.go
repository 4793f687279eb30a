// Package webd exposes the library over HTTP: login, document listing
// and download, thumbnails, and the two search operations.
package webd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

type Options struct {
	Listen string
}

type Server struct {
	opts Options
	h    *Handlers

	mu        sync.Mutex
	listener  net.Listener
	httpSrv   *http.Server
	closeOnce sync.Once
	closed    chan struct{}
}

func NewServer(opts Options, h *Handlers) *Server {
	if opts.Listen == "" {
		opts.Listen = "127.0.0.1:8080"
	}
	return &Server{
		opts:   opts,
		h:      h,
		closed: make(chan struct{}),
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Run() error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	if s.h == nil {
		return fmt.Errorf("handlers are required")
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = ln
	s.httpSrv = srv
	s.mu.Unlock()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		if s.isClosed() {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
