package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Codec serializes frames for one connection. JSON frames travel as websocket
// text messages, msgpack frames as binary messages.
type Codec interface {
	Name() string
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

// CodecFor resolves a HELLO encoding name; "" selects JSON.
func CodecFor(name string) (Codec, bool) {
	switch name {
	case "", EncodingJSON:
		return JSONCodec{}, true
	case EncodingMsgpack:
		return MsgpackCodec{}, true
	}
	return nil, false
}

type JSONCodec struct{}

func (JSONCodec) Name() string                    { return EncodingJSON }
func (JSONCodec) Binary() bool                    { return false }
func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// MsgpackCodec reuses the json struct tags so both encodings share field names.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return EncodingMsgpack }
func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
