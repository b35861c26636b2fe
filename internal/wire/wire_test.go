package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustDecode(t *testing.T, b []byte) (uint64, []byte) {
	t.Helper()
	gen, p, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord error: %v", err)
	}
	return gen, p
}

func TestRecordEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		gen     uint64
		payload []byte
	}{
		{0, nil},
		{42, []byte("hello")},
		{math.MaxUint64, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		gen, p := mustDecode(t, EncodeRecord(tc.gen, tc.payload))
		if gen != tc.gen {
			t.Fatalf("gen mismatch: got %d want %d", gen, tc.gen)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestRecordRejectsTrailingBytes(t *testing.T) {
	enc := append(EncodeRecord(7, []byte("x")), 0xDE, 0xAD)
	if _, _, err := DecodeRecord(enc); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt on trailing bytes, got %v", err)
	}
}

func TestRecordCorruptHeaders(t *testing.T) {
	good := EncodeRecord(1, []byte("abc"))

	mutate := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	cases := map[string][]byte{
		"short":     good[:headerLen-1],
		"magic":     mutate(func(b []byte) []byte { b[0] = 'X'; return b }),
		"version":   mutate(func(b []byte) []byte { b[4] = 9; return b }),
		"kind":      mutate(func(b []byte) []byte { b[5] = 2; return b }),
		"truncated": good[:len(good)-1],
		"vlen": mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[14:18], math.MaxUint32)
			return b
		}),
		"foreign": []byte("not-wire-format-at-all"),
	}
	for name, b := range cases {
		if _, _, err := DecodeRecord(b); err != ErrCorrupt {
			t.Fatalf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}
