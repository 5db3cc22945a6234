package serializer

import (
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/Zereker/rawsocket"
)

// CBORSerializer encodes WAMP messages as CBOR (RFC 8949).
type CBORSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a serializer with canonical encoding. Decoded maps have string keys.
func CBOR() (*CBORSerializer, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor encode mode")
	}

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor decode mode")
	}

	return &CBORSerializer{enc: em, dec: dm}, nil
}

// Serialize implements rawsocket.Serializer. CBOR payloads are binary.
func (s *CBORSerializer) Serialize(msg rawsocket.Message) ([]byte, bool, error) {
	data, err := s.enc.Marshal(msg)
	if err != nil {
		return nil, true, errors.Wrap(err, "cbor encode")
	}
	return data, true, nil
}

// Unserialize implements rawsocket.Serializer. Each payload holds one message.
func (s *CBORSerializer) Unserialize(payload []byte) ([]rawsocket.Message, error) {
	var v interface{}
	if err := s.dec.Unmarshal(payload, &v); err != nil {
		return nil, rawsocket.WrapProtocolError(err, "invalid CBOR payload")
	}

	msg, err := validate(v)
	if err != nil {
		return nil, err
	}
	return []rawsocket.Message{msg}, nil
}
