package rawsocket

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// Role tells which side initiated the connections of a Factory.
type Role int

const (
	// RoleServer accepts connections.
	RoleServer Role = iota
	// RoleClient initiates connections.
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// Factory binds new connections to sessions. It holds the configuration
// shared by all of its connections and is never modified after creation,
// so it may be used from any number of goroutines.
type Factory struct {
	role       Role
	newSession SessionFactory
	serializer Serializer
	opts       options
}

// NewServerFactory returns a Factory for accepted connections.
// newSession is called once per connection; serializer is shared by all of them.
func NewServerFactory(newSession SessionFactory, serializer Serializer, opt ...Option) (*Factory, error) {
	return newFactory(RoleServer, newSession, serializer, opt)
}

// NewClientFactory returns a Factory for connections initiated by this side.
func NewClientFactory(newSession SessionFactory, serializer Serializer, opt ...Option) (*Factory, error) {
	return newFactory(RoleClient, newSession, serializer, opt)
}

func newFactory(role Role, newSession SessionFactory, serializer Serializer, opt []Option) (*Factory, error) {
	if newSession == nil {
		return nil, ErrInvalidSessionFactory
	}

	if serializer == nil {
		return nil, ErrInvalidSerializer
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Factory{
		role:       role,
		newSession: newSession,
		serializer: serializer,
		opts:       opts,
	}, nil
}

// Role returns the role of the factory.
func (f *Factory) Role() Role {
	return f.role
}

// Serializer returns the serializer shared by the factory's connections.
func (f *Factory) Serializer() Serializer {
	return f.serializer
}

// Debug reports whether debug tracing is enabled.
func (f *Factory) Debug() bool {
	return f.opts.debug
}

// NewConn wraps an established connection. The session is created when the
// returned Conn is run.
func (f *Factory) NewConn(conn net.Conn) *Conn {
	return newConn(f, conn)
}

// Handle runs conn to completion. It satisfies Handler, so a server Factory
// can be passed straight to Server.Serve.
func (f *Factory) Handle(ctx context.Context, conn net.Conn) {
	c := newConn(f, conn)
	_ = c.Run(ctx)
}

// Dial connects to address and returns the transport for the new connection.
// The caller runs it with Conn.Run.
func (f *Factory) Dial(ctx context.Context, network, address string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s %s", network, address)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	return newConn(f, conn), nil
}
