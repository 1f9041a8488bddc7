package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = DefaultReadTimeout
	DefaultShutdownTimeout = 30 * time.Second
)

// Server wraps http.Server and drains in-flight requests on SIGINT/SIGTERM.
type Server struct {
	*http.Server

	shutdownTimeout time.Duration
	signals         chan os.Signal
	done            chan struct{}
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		shutdownTimeout: DefaultShutdownTimeout,
		signals:         make(chan os.Signal, 1),
		done:            make(chan struct{}),
	}
}

// Serve accepts connections on ln until a shutdown signal arrives, then waits for the drain to finish.
func (srv *Server) Serve(ln net.Listener) error {
	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(srv.signals)
	go srv.awaitSignal()

	err := srv.Server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-srv.done
	return nil
}

// ListenAndServe listens on the configured tcp address.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(ln)
}

func (srv *Server) awaitSignal() {
	sig, ok := <-srv.signals
	if !ok {
		return
	}
	Sugar.Infof("received %s, graceful shutting down HTTP server", sig)
	srv.shutdown()
}

func (srv *Server) shutdown() {
	defer close(srv.done)
	ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
		return
	}
	Sugar.Info("HTTP server shutdown success")
}

// GraceServer starts an HTTP server with graceful shutdown.
func GraceServer(addr string, handler http.Handler) error {
	return NewServer(addr, handler, DefaultReadTimeout, DefaultWriteTimeout).ListenAndServe()
}
