package filecache

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/imagecache"
	"github.com/unkn0wn-root/imagecache/codec"
	"github.com/unkn0wn-root/imagecache/internal/util"
	"github.com/unkn0wn-root/imagecache/internal/wire"
)

// Record is the persisted metadata of one entry. Size and timestamps are
// re-derived from the file when a record is missing.
type Record struct {
	URL         string `json:"url" msgpack:"url" cbor:"url"`
	ContentType string `json:"content_type,omitempty" msgpack:"content_type,omitempty" cbor:"content_type,omitempty"`
	Size        int64  `json:"size" msgpack:"size" cbor:"size"`
	StatusCode  int    `json:"status,omitempty" msgpack:"status,omitempty" cbor:"status,omitempty"`
	CreatedMs   int64  `json:"created_ms" msgpack:"created_ms" cbor:"created_ms"`
	AccessedMs  int64  `json:"accessed_ms" msgpack:"accessed_ms" cbor:"accessed_ms"`
}

func newRecordCodec(name string, maxDecode int) (codec.Codec[Record], error) {
	var inner codec.Codec[Record]
	switch name {
	case codec.NameMsgpack:
		inner = codec.Msgpack[Record]{}
	case codec.NameJSON:
		inner = codec.JSON[Record]{}
	case codec.NameCBOR:
		c, err := codec.NewCBOR[Record](true)
		if err != nil {
			return nil, err
		}
		inner = c
	case codec.NameProtobuf:
		inner = structRecord{pb: codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return codec.Limit[Record]{Inner: inner, MaxDecode: maxDecode}, nil
}

// structRecord maps a Record onto a protobuf Struct. Integers travel as
// doubles; millisecond timestamps and sizes stay exact below 2^53.
type structRecord struct {
	pb codec.Protobuf[*structpb.Struct]
}

func (c structRecord) Encode(r Record) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"url":          r.URL,
		"content_type": r.ContentType,
		"size":         r.Size,
		"status":       r.StatusCode,
		"created_ms":   r.CreatedMs,
		"accessed_ms":  r.AccessedMs,
	})
	if err != nil {
		return nil, err
	}
	return c.pb.Encode(s)
}

func (c structRecord) Decode(b []byte) (Record, error) {
	s, err := c.pb.Decode(b)
	if err != nil {
		return Record{}, err
	}
	f := s.GetFields()
	if _, ok := f["url"]; !ok {
		return Record{}, fmt.Errorf("filecache: record without url")
	}
	return Record{
		URL:         f["url"].GetStringValue(),
		ContentType: f["content_type"].GetStringValue(),
		Size:        int64(f["size"].GetNumberValue()),
		StatusCode:  int(f["status"].GetNumberValue()),
		CreatedMs:   int64(f["created_ms"].GetNumberValue()),
		AccessedMs:  int64(f["accessed_ms"].GetNumberValue()),
	}, nil
}

// readRecord loads the record of path. Corrupt frames, records written under
// an older generation and undecodable payloads are deleted on read.
func (c *Cache) readRecord(ctx context.Context, path string) (Record, bool) {
	k := util.RecordKey(path)
	raw, ok, err := c.prov.Get(ctx, k)
	if err != nil {
		c.log.Warn("record read failed", imagecache.Fields{"path": path, "err": err})
		return Record{}, false
	}
	if !ok {
		return Record{}, false
	}
	g, payload, err := wire.DecodeRecord(raw)
	if err != nil {
		c.heal(ctx, k, path, "corrupt")
		return Record{}, false
	}
	if g != c.snapshotGen(ctx, path) {
		c.heal(ctx, k, path, "gen_mismatch")
		return Record{}, false
	}
	r, err := c.rec.Decode(payload)
	if err != nil {
		c.heal(ctx, k, path, "value_decode")
		return Record{}, false
	}
	return r, true
}

func (c *Cache) heal(ctx context.Context, key, path, reason string) {
	_ = c.prov.Del(ctx, key)
	c.hooks.RecordSelfHeal(path, reason)
	c.log.Debug("record self-healed", imagecache.Fields{"path": path, "reason": reason})
}

// writeRecord stores r under the generation observedGen. The write is skipped
// when the generation moved since it was observed.
func (c *Cache) writeRecord(ctx context.Context, path string, r Record, observedGen uint64) error {
	if c.snapshotGen(ctx, path) != observedGen {
		c.log.Debug("record write skipped (gen mismatch)", imagecache.Fields{"path": path, "obs": observedGen})
		return nil
	}
	payload, err := c.rec.Encode(r)
	if err != nil {
		return err
	}
	b := wire.EncodeRecord(observedGen, payload)
	ok, err := c.prov.Set(ctx, util.RecordKey(path), b, int64(len(b)), c.recordTTL)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("record rejected by provider (pressure)", imagecache.Fields{"path": path})
	}
	return nil
}

func (c *Cache) snapshotGen(ctx context.Context, path string) uint64 {
	g, err := c.gen.Snapshot(ctx, path)
	if err != nil {
		// treat as 0: record writes skip and reads self-heal
		c.log.Warn("gen snapshot error", imagecache.Fields{"path": path, "err": err})
		return 0
	}
	return g
}

func (c *Cache) bumpGen(ctx context.Context, path string) uint64 {
	g, err := c.gen.Bump(ctx, path)
	if err != nil {
		c.hooks.GenBumpError(path, err)
		c.log.Error("gen bump error", imagecache.Fields{"path": path, "err": err})
		return 0
	}
	return g
}

func toMs(t time.Time) int64 { return t.UnixMilli() }

func fromMs(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
