// Package codec serializes entry metadata records for storage in a provider.
//
// Codecs here are generic over the value type; package filecache picks one by
// name (see filecache.Options.Codec) and frames its output with a generation.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names of the built-in codecs.
const (
	NameJSON     = "json"
	NameMsgpack  = "msgpack"
	NameCBOR     = "cbor"
	NameProtobuf = "protobuf"
)
