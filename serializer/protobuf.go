package serializer

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Zereker/rawsocket"
)

// ProtobufSerializer encodes WAMP messages as a google.protobuf.ListValue.
// Numbers travel as doubles, so decoded type codes are float64 like with JSON.
type ProtobufSerializer struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Protobuf returns a serializer with deterministic marshaling.
func Protobuf() *ProtobufSerializer {
	return &ProtobufSerializer{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{DiscardUnknown: true},
	}
}

// Serialize implements rawsocket.Serializer. msg must be a []interface{}.
func (s *ProtobufSerializer) Serialize(msg rawsocket.Message) ([]byte, bool, error) {
	elems, ok := msg.([]interface{})
	if !ok {
		return nil, true, errors.Errorf("protobuf: message is %T, not an array", msg)
	}

	list, err := structpb.NewList(elems)
	if err != nil {
		return nil, true, errors.Wrap(err, "protobuf encode")
	}

	data, err := s.mo.Marshal(list)
	if err != nil {
		return nil, true, errors.Wrap(err, "protobuf encode")
	}
	return data, true, nil
}

// Unserialize implements rawsocket.Serializer. Each payload holds one message.
func (s *ProtobufSerializer) Unserialize(payload []byte) ([]rawsocket.Message, error) {
	var list structpb.ListValue
	if err := s.uo.Unmarshal(payload, &list); err != nil {
		return nil, rawsocket.WrapProtocolError(err, "invalid protobuf payload")
	}

	msg, err := validate(list.AsSlice())
	if err != nil {
		return nil, err
	}
	return []rawsocket.Message{msg}, nil
}
