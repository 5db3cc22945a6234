package serializer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Zereker/rawsocket"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: "json"},
		{name: "JSON"},
		{name: "json.batched"},
		{name: " cbor "},
		{name: "protobuf"},
		{name: "msgpack", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		s, err := New(tt.name)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownSerializer) {
				t.Errorf("New(%q) error = %v, want ErrUnknownSerializer", tt.name, err)
			}
			if s != nil {
				t.Errorf("New(%q) returned a serializer with an error", tt.name)
			}
			continue
		}
		if err != nil || s == nil {
			t.Errorf("New(%q) = %v, %v", tt.name, s, err)
		}
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	s := JSON()
	hello := []interface{}{1, "realm1", map[string]interface{}{"roles": map[string]interface{}{}}}

	payload, isBinary, err := s.Serialize(hello)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if isBinary {
		t.Error("JSON payload reported as binary")
	}
	if string(payload) != `[1,"realm1",{"roles":{}}]` {
		t.Errorf("payload = %s", payload)
	}

	msgs, err := s.Unserialize(payload)
	if err != nil {
		t.Fatalf("Unserialize failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}

	msg := msgs[0].([]interface{})
	if msg[0] != float64(1) || msg[1] != "realm1" {
		t.Errorf("message = %v", msg)
	}
}

func TestBatchedJSON(t *testing.T) {
	s := BatchedJSON()

	var payload []byte
	for _, m := range [][]interface{}{{1, "realm1", map[string]interface{}{}}, {6, map[string]interface{}{}, "bye"}} {
		p, _, err := s.Serialize(m)
		if err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}
		if p[len(p)-1] != batchSeparator {
			t.Fatalf("payload %q not terminated by the record separator", p)
		}
		payload = append(payload, p...)
	}

	msgs, err := s.Unserialize(payload)
	if err != nil {
		t.Fatalf("Unserialize failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if code := msgs[1].([]interface{})[0]; code != float64(6) {
		t.Errorf("second message type = %v, want 6", code)
	}

	// A final message without its separator is still accepted.
	msgs, err = s.Unserialize([]byte(`[1,"a",{}]` + "\x1e" + `[2,1,{}]`))
	if err != nil || len(msgs) != 2 {
		t.Errorf("Unserialize = %v, %v", msgs, err)
	}
}

func TestCBOR_RoundTrip(t *testing.T) {
	s, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR failed: %v", err)
	}

	publish := []interface{}{16, 239714735, map[string]interface{}{}, "com.myapp.topic", []interface{}{"hello"}}

	payload, isBinary, err := s.Serialize(publish)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !isBinary {
		t.Error("CBOR payload reported as text")
	}

	again, _, err := s.Serialize(publish)
	if err != nil || !bytes.Equal(payload, again) {
		t.Error("canonical encoding is not deterministic")
	}

	msgs, err := s.Unserialize(payload)
	if err != nil {
		t.Fatalf("Unserialize failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}

	msg := msgs[0].([]interface{})
	if msg[0] != uint64(16) || msg[3] != "com.myapp.topic" {
		t.Errorf("message = %v", msg)
	}
	if _, ok := msg[2].(map[string]interface{}); !ok {
		t.Errorf("details decoded as %T, want map[string]interface{}", msg[2])
	}
}

func TestProtobuf_RoundTrip(t *testing.T) {
	s := Protobuf()
	call := []interface{}{48, 7814135, map[string]interface{}{}, "com.myapp.add", []interface{}{23, 7}}

	payload, isBinary, err := s.Serialize(call)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !isBinary {
		t.Error("protobuf payload reported as text")
	}

	msgs, err := s.Unserialize(payload)
	if err != nil {
		t.Fatalf("Unserialize failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}

	msg := msgs[0].([]interface{})
	if msg[0] != float64(48) || msg[3] != "com.myapp.add" {
		t.Errorf("message = %v", msg)
	}
	if args := msg[4].([]interface{}); len(args) != 2 || args[0] != float64(23) {
		t.Errorf("args = %v", msg[4])
	}

	if _, _, err := s.Serialize(map[string]interface{}{"type": 1}); err == nil {
		t.Error("protobuf encoded a non-array message")
	}
}

func TestUnserialize_ProtocolErrors(t *testing.T) {
	cborSer, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR failed: %v", err)
	}

	notArray, err := encodeCBOR(t, cborSer, map[string]interface{}{"type": 1})
	if err != nil {
		t.Fatal(err)
	}
	negativeType, err := encodeCBOR(t, cborSer, []interface{}{-1, "x"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		s       rawsocket.Serializer
		payload []byte
	}{
		{name: "json garbage", s: JSON(), payload: []byte("{not json")},
		{name: "json empty payload", s: JSON(), payload: nil},
		{name: "json object", s: JSON(), payload: []byte(`{"type":1}`)},
		{name: "json empty array", s: JSON(), payload: []byte(`[]`)},
		{name: "json string type", s: JSON(), payload: []byte(`["1","realm1"]`)},
		{name: "json fractional type", s: JSON(), payload: []byte(`[1.5]`)},
		{name: "batched bad element", s: BatchedJSON(), payload: []byte(`[1,"a",{}]` + "\x1e" + `{}` + "\x1e")},
		{name: "cbor garbage", s: cborSer, payload: []byte{0xff, 0x00}},
		{name: "cbor empty payload", s: cborSer, payload: nil},
		{name: "cbor map", s: cborSer, payload: notArray},
		{name: "cbor negative type", s: cborSer, payload: negativeType},
		{name: "protobuf empty list", s: Protobuf(), payload: nil},
		{name: "protobuf truncated", s: Protobuf(), payload: []byte{0x0a, 0x05, 0x1a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := tt.s.Unserialize(tt.payload)
			if !rawsocket.IsProtocolError(err) {
				t.Errorf("Unserialize error = %v, want protocol error", err)
			}
			if msgs != nil {
				t.Errorf("Unserialize returned messages with an error: %v", msgs)
			}
		})
	}
}

func TestSerialize_Unencodable(t *testing.T) {
	if _, _, err := JSON().Serialize([]interface{}{1, make(chan int)}); err == nil {
		t.Error("JSON encoded a channel")
	}

	s, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR failed: %v", err)
	}
	if _, _, err := s.Serialize([]interface{}{1, func() {}}); err == nil {
		t.Error("CBOR encoded a function")
	}
}

func encodeCBOR(t *testing.T, s *CBORSerializer, v interface{}) ([]byte, error) {
	t.Helper()
	payload, _, err := s.Serialize(v)
	return payload, err
}
