package codec

import (
	"bytes"
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

type rec struct {
	URL  string `json:"url" msgpack:"url" cbor:"url"`
	Size int64  `json:"size" msgpack:"size" cbor:"size"`
}

func TestLimitRejectsOversizedPayload(t *testing.T) {
	c := Limit[rec]{Inner: JSON[rec]{}, MaxDecode: 16}
	b, err := c.Encode(rec{URL: strings.Repeat("x", 64)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("expected size error")
	}
	small, _ := c.Encode(rec{})
	if _, err := c.Decode(small); err != nil {
		t.Fatalf("small payload rejected: %v", err)
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int64](true)
	a, err := c.Encode(map[string]int64{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		b, _ := c.Encode(map[string]int64{"c": 3, "a": 1, "b": 2})
		if !bytes.Equal(a, b) {
			t.Fatalf("deterministic encoding differs")
		}
	}
}

func TestMsgpackKeepsFields(t *testing.T) {
	in := rec{URL: "https://x/a.png", Size: 42}
	b, err := Msgpack[rec]{}.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Msgpack[rec]{}.Decode(b)
	if err != nil || out != in {
		t.Fatalf("decode = %+v, %v", out, err)
	}
}

func TestProtobufStruct(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	s, err := structpb.NewStruct(map[string]any{"url": "https://x/a.png", "size": 42})
	if err != nil {
		t.Fatalf("structpb: %v", err)
	}
	b, err := c.Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.GetFields()["url"].GetStringValue() != "https://x/a.png" || got.GetFields()["size"].GetNumberValue() != 42 {
		t.Fatalf("decoded = %v", got)
	}
}
