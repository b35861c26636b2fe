package codec

import "google.golang.org/protobuf/proto"

// Protobuf serializes proto messages. Records have no generated message of
// their own; filecache maps them onto structpb.Struct.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for an empty message, e.g. func() *structpb.Struct { return &structpb.Struct{} }
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
