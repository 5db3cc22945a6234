package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/Zereker/rawsocket"
)

// batchSeparator terminates every message of a batched JSON payload.
const batchSeparator = 0x1e

// JSONSerializer encodes WAMP messages as JSON text.
type JSONSerializer struct {
	batched bool
}

// JSON returns a serializer putting exactly one message in each payload.
func JSON() *JSONSerializer {
	return &JSONSerializer{}
}

// BatchedJSON returns a serializer whose payloads may hold several messages,
// each terminated by the 0x1E record separator.
func BatchedJSON() *JSONSerializer {
	return &JSONSerializer{batched: true}
}

// Serialize implements rawsocket.Serializer. JSON payloads are text.
func (s *JSONSerializer) Serialize(msg rawsocket.Message) ([]byte, bool, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, false, errors.Wrap(err, "json encode")
	}

	if s.batched {
		data = append(data, batchSeparator)
	}
	return data, false, nil
}

// Unserialize implements rawsocket.Serializer.
func (s *JSONSerializer) Unserialize(payload []byte) ([]rawsocket.Message, error) {
	if !s.batched {
		msg, err := decodeJSON(payload)
		if err != nil {
			return nil, err
		}
		return []rawsocket.Message{msg}, nil
	}

	chunks := bytes.Split(payload, []byte{batchSeparator})
	// The last message is terminated too, leaving an empty tail.
	if len(chunks) > 0 && len(chunks[len(chunks)-1]) == 0 {
		chunks = chunks[:len(chunks)-1]
	}

	msgs := make([]rawsocket.Message, 0, len(chunks))
	for _, chunk := range chunks {
		msg, err := decodeJSON(chunk)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func decodeJSON(data []byte) (rawsocket.Message, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, rawsocket.WrapProtocolError(err, "invalid JSON payload")
	}

	msg, err := validate(v)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
