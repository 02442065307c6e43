package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/djwesty/rust-irc/internal/registry"
)

// Server accepts TCP connections and runs one session per connection.
type Server struct {
	addr string
	reg  *registry.Registry

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(addr string, reg *registry.Registry) *Server {
	return &Server{
		addr:  addr,
		reg:   reg,
		conns: make(map[net.Conn]struct{}),
	}
}

// Run binds the listen address and accepts until ctx is canceled. A bind
// failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is canceled, then closes the
// listener and every live connection and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeAll()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn)
		go func() {
			defer s.untrack(conn)
			newSession(conn, s.reg).run()
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// closeAll closes every live connection, unblocking session read loops so
// they can tear down.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
