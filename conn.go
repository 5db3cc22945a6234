// Package rawsocket carries session protocol messages (e.g., WAMP) over raw
// stream connections such as TCP or Unix sockets.
//
// Every message travels as one frame: a 4-byte big-endian length followed by
// the payload produced by a Serializer. A Factory binds each new connection to
// a fresh Session and a Conn, which owns the connection lifecycle: it
// deframes and dispatches inbound messages in order, queues outbound ones, and
// aborts the connection as soon as the peer sends anything it cannot trust.
package rawsocket

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Connection states. A connection never leaves stateClosed.
const (
	stateConnecting int32 = iota
	stateOpen
	stateClosed
)

// Conn is the transport of one connection. It implements Transport for the
// Session bound to it.
//
// Run drives the connection: it creates the Session, delivers inbound messages
// to it and tells it when the connection ends. Send, Close and Abort may be
// called from any goroutine.
type Conn struct {
	id      string
	peer    string
	rawConn net.Conn
	factory *Factory
	opts    *options
	logger  Logger
	metrics Metrics
	trace   tracer

	codec   *FrameCodec
	limiter *rate.Limiter

	// session is set before the read loop starts and cleared after it stops.
	session Session

	state   atomic.Int32
	running atomic.Bool
	cancel  context.CancelFunc

	sendMu   sync.RWMutex // held shared while enqueuing, exclusively by Close
	sendMsg  chan []byte
	closing  chan struct{} // closed by Close; the write loop drains and stops
	done     chan struct{} // closed once the connection is being torn down
	doneOnce sync.Once

	mu     sync.Mutex
	reason error // set by Abort or by a fatal inbound failure
}

func newConn(f *Factory, rawConn net.Conn) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:      id,
		peer:    peerString(rawConn),
		rawConn: rawConn,
		factory: f,
		opts:    &f.opts,
		logger:  f.opts.logger,
		metrics: f.opts.metrics,
		trace:   tracer{logger: f.opts.logger, enabled: f.opts.debug, id: id},
		codec:   NewFrameCodec(f.opts.maxFrameSize),
		sendMsg: make(chan []byte, f.opts.bufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	if f.opts.rateLimit > 0 {
		c.limiter = rate.NewLimiter(f.opts.rateLimit, f.opts.rateBurst)
	}

	return c
}

// peerString describes the remote end of conn, or "?" when it has none.
func peerString(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return "?"
	}

	switch a := addr.(type) {
	case *net.TCPAddr:
		if a == nil {
			return "?"
		}
		if a.IP.To4() != nil {
			return fmt.Sprintf("tcp4:%s:%d", a.IP, a.Port)
		}
		return fmt.Sprintf("tcp6:%s:%d", a.IP, a.Port)
	case *net.UnixAddr:
		if a == nil {
			return "?"
		}
		return "unix:" + a.Name
	default:
		return addr.Network() + ":" + addr.String()
	}
}

// ID returns the unique identifier of the connection used in logs.
func (c *Conn) ID() string {
	return c.id
}

// Peer returns the remote peer, e.g. "tcp4:127.0.0.1:53412", or "?" when unknown.
func (c *Conn) Peer() string {
	return c.peer
}

// Role returns the role of the factory that created the connection.
func (c *Conn) Role() Role {
	return c.factory.role
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// Run opens the session and processes the connection until it ends.
// It calls Session.OnClose before returning and closes the underlying connection.
//
// Run returns nil when the connection was closed cleanly (see IsCleanClose) and
// the reason otherwise. Canceling ctx tears the connection down without flushing.
func (c *Conn) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("connection already running")
	}

	c.logger.Info("connection established", "id", c.id, "peer", c.peer, "role", c.factory.role)
	c.trace.event("connection options",
		"buffer_size", c.opts.bufferSize,
		"max_frame_size", c.opts.maxFrameSize,
		"idle_timeout", c.opts.idleTimeout,
		"write_timeout", c.opts.writeTimeout)

	ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.writeLoop(child)
	})

	group.Go(func() error {
		<-child.Done()
		c.state.Store(stateClosed)
		c.markDone()
		_ = c.rawConn.Close()
		return nil
	})

	// The write loop already runs, so the session may send from OnOpen.
	if err := c.open(); err != nil {
		c.fail(err)
	} else if c.IsOpen() {
		group.Go(func() error {
			return c.readLoop(child)
		})
	}

	return c.teardown(group.Wait())
}

// open constructs the session and calls its OnOpen.
func (c *Conn) open() error {
	var session Session
	err := safeCall(func() (err error) {
		session, err = c.factory.newSession()
		return err
	})
	if err == nil && session == nil {
		err = errors.New("nil session")
	}
	if err != nil {
		return errors.Wrap(err, "construct session")
	}

	c.session = session
	c.state.Store(stateOpen)
	c.metrics.ConnOpened(c.factory.role)

	if err := safeCall(func() error { return session.OnOpen(c) }); err != nil {
		return errors.Wrap(err, "open session")
	}
	return nil
}

// teardown releases the session after both loops stopped.
func (c *Conn) teardown(groupErr error) error {
	c.state.Store(stateClosed)
	c.markDone()
	_ = c.rawConn.Close()

	aborted, reason := c.closeReason(groupErr)
	wasClean := !aborted && IsCleanClose(reason)

	if session := c.session; session != nil {
		c.session = nil
		if err := safeCall(func() error { return session.OnClose(wasClean) }); err != nil {
			c.trace.event("session close handler failed", "error", err)
		}
		c.metrics.ConnClosed(c.factory.role, wasClean)
	}

	if wasClean {
		c.logger.Info("connection closed", "id", c.id, "peer", c.peer)
		return nil
	}

	c.logger.Info("connection closed with error", "id", c.id, "peer", c.peer, "error", reason)
	return reason
}

// closeReason returns why the connection ended and whether it was aborted.
// A reason recorded by terminate always means an abort, whatever it wraps.
func (c *Conn) closeReason(groupErr error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reason != nil {
		return true, c.reason
	}
	return false, groupErr
}

// IsCleanClose reports whether a connection that ended for reason ended gracefully:
// either the local side called Close, or the peer closed the stream between frames.
// Everything else, including Abort, timeouts and protocol violations, is unclean.
func IsCleanClose(reason error) bool {
	return reason == nil || errors.Is(reason, errClosedLocally) || errors.Is(reason, errPeerClosed)
}

// IsOpen reports whether the transport is open and bound to a session.
func (c *Conn) IsOpen() bool {
	return c.state.Load() == stateOpen
}

// Send serializes msg and queues it for writing, blocking while the outbound
// queue is full. Messages are written in the order Send is called.
//
// Send returns ErrTransportNotOpen when the transport is not open, and a
// *SerializationError when msg cannot be encoded; the latter leaves the
// connection open.
func (c *Conn) Send(msg Message) error {
	return c.SendContext(context.Background(), msg)
}

// SendContext is like Send but gives up waiting for queue space when ctx is done.
func (c *Conn) SendContext(ctx context.Context, msg Message) error {
	frame, err := c.prepare(msg)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, frame, true)
}

// TrySend is like Send but never blocks: it returns ErrBufferFull, without
// queueing msg, when the outbound queue is full.
func (c *Conn) TrySend(msg Message) error {
	frame, err := c.prepare(msg)
	if err != nil {
		return err
	}
	return c.enqueue(context.Background(), frame, false)
}

// enqueue hands frame to the write loop. Close cannot start while a frame is
// being queued, so every accepted frame is written by the drain.
func (c *Conn) enqueue(ctx context.Context, frame []byte, block bool) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if !c.IsOpen() {
		return ErrTransportNotOpen
	}

	if !block {
		select {
		case c.sendMsg <- frame:
			return nil
		default:
			return ErrBufferFull
		}
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-c.done:
		return ErrTransportNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
}

// prepare serializes and frames msg.
func (c *Conn) prepare(msg Message) ([]byte, error) {
	if !c.IsOpen() {
		return nil, ErrTransportNotOpen
	}

	c.trace.message("tx", msg)

	var payload []byte
	err := safeCall(func() (err error) {
		payload, _, err = c.factory.serializer.Serialize(msg)
		return err
	})
	if err != nil {
		return nil, &SerializationError{Err: err}
	}

	frame, err := c.codec.Encode(payload)
	if err != nil {
		return nil, err
	}

	c.trace.octets("tx", payload)
	return frame, nil
}

// Close starts a graceful shutdown: frames queued so far are written, then the
// connection is closed. The session sees OnClose(true). Close waits for Send
// calls that are already queueing a frame.
func (c *Conn) Close() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.state.CompareAndSwap(stateOpen, stateClosed) {
		return ErrTransportNotOpen
	}

	c.trace.event("closing connection")
	close(c.closing)
	return nil
}

// Abort closes the connection immediately. Queued frames are dropped and, on
// TCP, the peer receives a reset. The session sees OnClose(false).
func (c *Conn) Abort() error {
	if !c.state.CompareAndSwap(stateOpen, stateClosed) {
		return ErrTransportNotOpen
	}

	c.trace.event("aborting connection")
	c.terminate(errAborted)
	return nil
}

// fail aborts the connection because of err, whatever state it is in.
func (c *Conn) fail(err error) {
	c.state.Store(stateClosed)

	if IsProtocolError(err) || errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrRateLimited) {
		c.trace.event("protocol error, aborting connection", "error", err)
	} else {
		c.trace.event("internal error, aborting connection", "error", err)
	}

	c.terminate(err)
}

func (c *Conn) terminate(reason error) {
	c.mu.Lock()
	if c.reason == nil {
		c.reason = reason
	}
	c.mu.Unlock()

	c.markDone()
	if c.cancel != nil {
		c.cancel()
	}
	abortConn(c.rawConn)
}

func (c *Conn) markDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// abortConn closes conn without lingering on unsent data where the
// connection supports it.
func abortConn(conn net.Conn) {
	if l, ok := conn.(interface{ SetLinger(sec int) error }); ok {
		_ = l.SetLinger(0)
	}
	_ = conn.Close()
}

// readLoop reads from the connection, deframes the stream and dispatches
// every complete frame. It returns when the connection ends; fatal inbound
// failures abort the connection before returning.
func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, c.opts.readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.opts.idleTimeout > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout))
		}

		n, err := c.rawConn.Read(buf)
		if n > 0 {
			if rerr := c.receive(buf[:n]); rerr != nil {
				c.fail(rerr)
				return rerr
			}
		}

		if err != nil {
			// A local Close is still flushing; let the write loop finish.
			if !c.IsOpen() {
				return nil
			}

			c.logger.Debug("read error", "id", c.id, "peer", c.peer, "error", err)
			if errors.Is(err, io.EOF) {
				if c.codec.Buffered() > 0 {
					return io.ErrUnexpectedEOF
				}
				return errPeerClosed
			}
			return err
		}
	}
}

// receive feeds raw bytes to the codec and dispatches the completed frames.
// Nothing is dispatched once the transport stopped being open.
func (c *Conn) receive(data []byte) error {
	if !c.IsOpen() {
		return nil
	}

	payloads, err := c.codec.Feed(data)
	for _, payload := range payloads {
		if !c.IsOpen() {
			return nil
		}
		if derr := c.dispatch(payload); derr != nil {
			return derr
		}
	}

	return err
}

// dispatch decodes one payload and forwards its messages to the session.
func (c *Conn) dispatch(payload []byte) error {
	c.trace.octets("rx", payload)
	c.metrics.FrameReceived(c.factory.role, len(payload))

	var msgs []Message
	err := safeCall(func() (err error) {
		msgs, err = c.factory.serializer.Unserialize(payload)
		return err
	})
	if err != nil {
		if IsProtocolError(err) {
			return err
		}
		return errors.Wrap(err, "unserialize payload")
	}

	for _, msg := range msgs {
		if !c.IsOpen() {
			return nil
		}

		if c.limiter != nil && !c.limiter.Allow() {
			return ErrRateLimited
		}

		c.trace.message("rx", msg)
		if err := safeCall(func() error { return c.session.OnMessage(msg) }); err != nil {
			return errors.Wrap(err, "session message handler")
		}
	}

	return nil
}

// writeLoop writes queued frames in order.
// Returns when the context is canceled, a write fails or Close was called and
// the queue has been drained.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		case <-c.closing:
			return c.drain()
		}
	}
}

// drain writes whatever is still queued and reports the graceful close.
func (c *Conn) drain() error {
	for {
		select {
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		default:
			return errClosedLocally
		}
	}
}

// write sends one frame to the connection with a deadline.
func (c *Conn) write(data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))

	if _, err := c.rawConn.Write(data); err != nil {
		c.logger.Debug("write error", "id", c.id, "peer", c.peer, "error", err)
		return errors.Wrap(err, "write frame")
	}

	c.metrics.FrameSent(c.factory.role, len(data)-FrameHeaderSize)
	return nil
}

// safeCall runs fn, converting a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
