package transport

import (
	"github.com/fxamacker/cbor/v2"
)

// Codec is the negotiated payload encoding a socket frames and
// unframes bytes through (spec §4.I "encoded in a negotiated format,
// bincode-equivalent by default").
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// CBOREncoding is the default wire codec: a compact, self-describing
// binary encoding, the closest fit in the retrieval pack's dependency
// graph to the original's bincode framing.
var CBOREncoding Codec = cborCodec{}

type cborCodec struct{}

func (cborCodec) Encode(v interface{}) ([]byte, error) { return cbor.Marshal(v) }
func (cborCodec) Decode(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
