package rawsocket

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by transport operations.
var (
	// ErrTransportNotOpen is returned by Send, Close and Abort once the transport
	// is no longer open.
	ErrTransportNotOpen = errors.New("transport not open")
	// ErrFrameTooLarge is returned when a frame exceeds the configured maximum size.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrRateLimited is the reason a connection is aborted when the peer exceeds
	// its inbound message budget.
	ErrRateLimited = errors.New("inbound message rate exceeded")
	// ErrBufferFull is returned by TrySend when the outbound queue has no room.
	ErrBufferFull = errors.New("send buffer full")
	// ErrInvalidSessionFactory is returned when a factory is created without a session constructor.
	ErrInvalidSessionFactory = errors.New("invalid session factory")
	// ErrInvalidSerializer is returned when a factory is created without a serializer.
	ErrInvalidSerializer = errors.New("invalid serializer")
)

var (
	// errClosedLocally marks a connection ended by a graceful Close.
	errClosedLocally = errors.New("connection closed locally")
	// errPeerClosed marks a stream the peer ended between two frames.
	errPeerClosed = errors.New("connection closed by peer")
	// errAborted marks a connection torn down by Abort.
	errAborted = errors.New("connection aborted")
)

// SerializationError reports that an outbound message could not be encoded.
// The connection stays open.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("unable to serialize message: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// ProtocolError reports an inbound payload that violates the structural rules
// of the session protocol. Serializers return it from Unserialize; a Conn
// receiving it aborts the connection.
type ProtocolError struct {
	Reason string
	Err    error
}

// NewProtocolError returns a ProtocolError with a formatted reason.
func NewProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// WrapProtocolError returns a ProtocolError caused by err.
func WrapProtocolError(err error, reason string) *ProtocolError {
	return &ProtocolError{Reason: reason, Err: err}
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "protocol error: " + e.Reason + ": " + e.Err.Error()
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err or anything it wraps is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
