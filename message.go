package rawsocket

// Message is a decoded session protocol message. The transport never looks
// inside it; it only moves it between the Serializer and the Session.
type Message interface{}

// Serializer converts between messages and frame payloads.
// Applications choose the wire encoding (e.g., JSON or CBOR) by providing an
// implementation; see the serializer package.
//
// One Serializer is shared by every connection of a Factory, so implementations
// must be safe for concurrent use.
type Serializer interface {
	// Serialize encodes msg into a single payload. isBinary hints whether the
	// payload is binary or text.
	Serialize(msg Message) (payload []byte, isBinary bool, err error)
	// Unserialize decodes a payload into zero or more messages, in order.
	// Structural violations should be reported as *ProtocolError.
	Unserialize(payload []byte) ([]Message, error)
}
