package rawsocket

// Transport is the capability a Session uses to talk back to its peer.
// *Conn implements it.
type Transport interface {
	// Send serializes msg and queues it as one frame.
	Send(msg Message) error
	// IsOpen reports whether the transport still accepts Send, Close and Abort.
	IsOpen() bool
	// Close flushes queued frames and then closes the connection.
	Close() error
	// Abort closes the connection immediately, dropping queued frames.
	Abort() error
}

// Session consumes the messages of one connection.
//
// The callbacks are never invoked concurrently: OnOpen and OnClose run on the
// goroutine running Conn.Run, OnMessage on the connection's read loop between
// them. A returned error or a panic in OnOpen or OnMessage aborts the
// connection; failures in OnClose are logged and otherwise ignored.
type Session interface {
	// OnOpen is called once when the connection is established.
	OnOpen(t Transport) error
	// OnMessage is called once per decoded message, in arrival order.
	OnMessage(msg Message) error
	// OnClose is called at most once, when the connection ends.
	OnClose(wasClean bool) error
}

// SessionFactory constructs a new Session for each connection.
type SessionFactory func() (Session, error)
