// Package serializer provides WAMP serializers for rawsocket transports.
//
// A WAMP message is an array whose first element is the integer message type
// code, e.g. [1, "realm1", {}] for HELLO. Unserialize rejects anything else
// with a *rawsocket.ProtocolError, which makes the transport drop the peer.
package serializer

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/rawsocket"
)

// Names accepted by New.
const (
	NameJSON        = "json"
	NameBatchedJSON = "json.batched"
	NameCBOR        = "cbor"
	NameProtobuf    = "protobuf"
)

// ErrUnknownSerializer is returned by New for an unsupported name.
var ErrUnknownSerializer = errors.New("unknown serializer")

// New returns the serializer registered under name.
func New(name string) (rawsocket.Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameJSON:
		return JSON(), nil
	case NameBatchedJSON:
		return BatchedJSON(), nil
	case NameCBOR:
		s, err := CBOR()
		if err != nil {
			return nil, err
		}
		return s, nil
	case NameProtobuf:
		return Protobuf(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownSerializer, "%q", name)
	}
}

// validate checks that v has the shape of a WAMP message.
func validate(v interface{}) ([]interface{}, error) {
	msg, ok := v.([]interface{})
	if !ok {
		return nil, rawsocket.NewProtocolError("message is %T, not an array", v)
	}

	if len(msg) == 0 {
		return nil, rawsocket.NewProtocolError("empty message")
	}

	if !isTypeCode(msg[0]) {
		return nil, rawsocket.NewProtocolError("invalid message type %v", msg[0])
	}

	return msg, nil
}

func isTypeCode(v interface{}) bool {
	switch n := v.(type) {
	case uint64:
		return true
	case int64:
		return n >= 0
	case float64:
		return n >= 0 && n == math.Trunc(n) && n <= math.MaxInt64
	default:
		return false
	}
}
