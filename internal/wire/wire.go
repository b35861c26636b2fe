// Package wire frames entry metadata records before they reach a provider.
// A frame carries the generation of the entry path it was written under, so a
// reader can reject records that outlived a removal or a rewrite.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindRecord byte = 1

	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("imagecache: corrupt record")
	magic4     = [...]byte{'I', 'M', 'G', 'R'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeRecord: magic(4) | ver(1) | kind(1=record) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeRecord(gen uint64, payload []byte) []byte {
	out := make([]byte, headerLen+len(payload))
	copy(out, magic4[:])
	out[4] = version
	out[5] = kindRecord
	binary.BigEndian.PutUint64(out[6:14], gen)
	binary.BigEndian.PutUint32(out[14:18], uint32(len(payload)))
	copy(out[headerLen:], payload)
	return out
}

// DecodeRecord returns the generation and payload of a frame. The payload
// aliases b. Trailing bytes are treated as corruption.
func DecodeRecord(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return 0, nil, ErrCorrupt
	}
	gen = binary.BigEndian.Uint64(b[6:14])
	vlen := uint64(binary.BigEndian.Uint32(b[14:18]))
	if vlen != uint64(len(b)-headerLen) {
		return 0, nil, ErrCorrupt
	}
	return gen, b[headerLen:], nil
}
