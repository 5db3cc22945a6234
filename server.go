package rawsocket

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Handler is the interface for handling incoming connections.
// A server Factory implements it.
type Handler interface {
	// Handle is called in its own goroutine for each new connection.
	// The implementation owns the connection and must close it.
	Handle(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// Handle calls f(ctx, conn).
func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// deadliner is implemented by the TCP and Unix listeners.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Server accepts stream connections and hands them to a Handler.
type Server struct {
	listener        net.Listener
	logger          Logger
	shutdownTimeout time.Duration

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server will wait up to this duration
// before closing the listener.
// Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// Listen creates a server listening on a stream network ("tcp", "tcp4",
// "tcp6" or "unix") at address.
func Listen(network, address string, opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, address)
	}

	return NewServer(listener, opts...), nil
}

// NewServer creates a server on an existing listener.
func NewServer(listener net.Listener, opts ...ServerOption) *Server {
	s := &Server{
		listener:    listener,
		logger:      defaultLogger(),
		shutdownNow: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Serve starts accepting connections and dispatching them to the handler.
// It blocks until the context is canceled or an unrecoverable error occurs.
// Handlers receive ctx, so canceling it also tears down the connections.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()

		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()

		// Unblock Accept.
		if d, ok := s.listener.(deadliner); ok {
			_ = d.SetDeadline(time.Now())
		} else {
			_ = s.listener.Close()
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isShutdown() {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		go handler.Handle(ctx, conn)
	}
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
// Connections already handed to the handler are not affected.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
