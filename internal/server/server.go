// Package server implements the accept loop: it owns the listener and the
// registry shared by every connection, and spawns one session per socket.
package server

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/realzhujunhao/jhchat/internal/config"
	"github.com/realzhujunhao/jhchat/internal/errs"
	"github.com/realzhujunhao/jhchat/internal/registry"
	"github.com/realzhujunhao/jhchat/internal/session"
)

// Server accepts connections and hands each one to the session package,
// sharing a single registry across every connection it spawns.
type Server struct {
	listener net.Listener
	registry *registry.Registry
	log      *logrus.Logger
}

// Listen binds cfg.IP:cfg.Port and returns a Server ready to Serve.
func Listen(cfg config.ServerConfig, log *logrus.Logger) (*Server, error) {
	addr := net.JoinHostPort(cfg.IP, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.SourceExternal, errs.ListenPort, err)
	}
	return &Server{listener: ln, registry: registry.New(), log: log}, nil
}

// Addr reports the bound address, useful for tests that bind to ":0".
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve blocks, accepting connections until the listener is closed, and
// spawns one session.Serve goroutine per accepted socket. It returns the
// error that stopped accepting, which is nil only after Close.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go session.Serve(conn, s.registry, s.log)
	}
}

// Close stops the accept loop; in-flight sessions run to completion on
// their own.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Registry exposes the shared online-user registry, mainly for tests that
// want to assert on server-side state without a live connection.
func (s *Server) Registry() *registry.Registry { return s.registry }
