// Package codec abstracts the wire encoding used by the websocket store so
// the protocol can run over JSON (default) or CBOR (negotiated subprotocol).
package codec

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

type Marshaler interface {
	Marshal(v any) ([]byte, error)
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
}

// JSONCodec is the default wire codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, dst any) error { return json.Unmarshal(data, dst) }

// CBORCodec is used when the server negotiates the "cbor" subprotocol.
type CBORCodec struct{}

func (CBORCodec) Marshal(v any) ([]byte, error) { return cbor.Marshal(v) }

func (CBORCodec) Unmarshal(data []byte, dst any) error { return cbor.Unmarshal(data, dst) }
