package rawsocket

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestNewFactory_InvalidArguments(t *testing.T) {
	newSession := func() (Session, error) { return newTestSession(), nil }

	if _, err := NewServerFactory(nil, testSerializer{}); err != ErrInvalidSessionFactory {
		t.Errorf("nil constructor: got %v, want ErrInvalidSessionFactory", err)
	}
	if _, err := NewClientFactory(newSession, nil); err != ErrInvalidSerializer {
		t.Errorf("nil serializer: got %v, want ErrInvalidSerializer", err)
	}
}

func TestNewFactory_Accessors(t *testing.T) {
	newSession := func() (Session, error) { return newTestSession(), nil }

	server, err := NewServerFactory(newSession, testSerializer{}, DebugOption(true))
	if err != nil {
		t.Fatalf("NewServerFactory failed: %v", err)
	}
	client, err := NewClientFactory(newSession, testSerializer{})
	if err != nil {
		t.Fatalf("NewClientFactory failed: %v", err)
	}

	if server.Role() != RoleServer || server.Role().String() != "server" {
		t.Errorf("server role = %v", server.Role())
	}
	if client.Role() != RoleClient || client.Role().String() != "client" {
		t.Errorf("client role = %v", client.Role())
	}
	if Role(42).String() != "unknown" {
		t.Errorf("Role(42) = %v", Role(42))
	}

	if !server.Debug() || client.Debug() {
		t.Error("debug flag not carried by the factory")
	}
	if _, ok := server.Serializer().(testSerializer); !ok {
		t.Error("Serializer returned a different serializer")
	}

	if server.opts.bufferSize != defaultBufferSize || server.opts.logger == nil {
		t.Error("defaults not applied")
	}
}

func TestFactory_NewConnIsIndependent(t *testing.T) {
	f := newTestFactory(t, newTestSession())

	a1, b1 := net.Pipe()
	a2, b2 := net.Pipe()
	defer a1.Close()
	defer b1.Close()
	defer a2.Close()
	defer b2.Close()

	c1 := f.NewConn(a1)
	c2 := f.NewConn(a2)

	if c1.ID() == "" || c1.ID() == c2.ID() {
		t.Errorf("connection ids not unique: %q %q", c1.ID(), c2.ID())
	}
	if c1.Role() != RoleServer {
		t.Errorf("Role = %v, want server", c1.Role())
	}
	if c1.Addr() == nil {
		t.Error("Addr returned nil")
	}
}

func TestFactory_HandleRunsSession(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	s := newTestSession()
	f := newTestFactory(t, s)

	done := make(chan struct{})
	go func() {
		f.Handle(context.Background(), serverConn)
		close(done)
	}()

	waitOpened(t, s)
	if _, err := clientConn.Write(frame("hello")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	if msg := waitMessage(t, s); msg != "hello" {
		t.Errorf("message = %v, want hello", msg)
	}

	clientConn.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Handle did not return")
	}
	if !waitClosed(t, s) {
		t.Error("OnClose reported an unclean close")
	}
}

func TestFactory_DialAndServe(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	echo := newTestSession()
	echo.onMessage = func(tr Transport, msg Message) error {
		return tr.Send(msg)
	}
	serverFactory := newTestFactory(t, echo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx, serverFactory)

	client := newTestSession()
	client.onOpen = func(tr Transport) error {
		return tr.Send("hello")
	}
	client.onMessage = func(tr Transport, _ Message) error {
		return tr.Close()
	}
	clientFactory, err := NewClientFactory(func() (Session, error) { return client, nil }, testSerializer{},
		LoggerOption(&mockLogger{}))
	if err != nil {
		t.Fatalf("NewClientFactory failed: %v", err)
	}

	conn, err := clientFactory.Dial(ctx, "tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if conn.Role() != RoleClient {
		t.Errorf("Role = %v, want client", conn.Role())
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(ctx)
	}()

	if msg := waitMessage(t, client); msg != "hello" {
		t.Errorf("echo = %v, want hello", msg)
	}
	if err := waitRun(t, done); err != nil {
		t.Errorf("client Run returned %v, want nil", err)
	}
	if !waitClosed(t, client) {
		t.Error("client OnClose reported an unclean close")
	}
	if !waitClosed(t, echo) {
		t.Error("server OnClose reported an unclean close")
	}
}

func TestFactory_DialRefused(t *testing.T) {
	f := newTestFactory(t, newTestSession())

	// Grab a free port and release it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	if _, err := f.Dial(context.Background(), "tcp", addr); err == nil {
		t.Error("expected dial error")
	}
}
