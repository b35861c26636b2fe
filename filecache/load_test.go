package filecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/imagecache/codec"
	"github.com/unkn0wn-root/imagecache/genstore"
	"github.com/unkn0wn-root/imagecache/internal/util"
	"github.com/unkn0wn-root/imagecache/internal/wire"
)

func TestLoadIndexesExistingFiles(t *testing.T) {
	root := t.TempDir()
	writeEntry(t, root, "", "https://x.io/1.png", 10, zeroTime)
	writeEntry(t, root, "thumbs", "https://x.io/2.png", 20, zeroTime)

	c, mp := newTestCache(t, Options{Root: root})
	if !c.IsReady() {
		t.Fatal("not ready after Load")
	}
	if c.Len() != 2 || c.TotalSize() != 30 {
		t.Fatalf("len=%d total=%d, want 2/30", c.Len(), c.TotalSize())
	}
	// every scanned file without a record gets one
	for _, p := range []string{c.Path("https://x.io/1.png", ""), c.Path("https://x.io/2.png", "thumbs")} {
		if !mp.has(util.RecordKey(p)) {
			t.Fatalf("no record rebuilt for %s", p)
		}
	}
}

func TestLoadKeepsRecordMetadata(t *testing.T) {
	root := t.TempDir()
	const u = "https://x.io/kept.png"
	p := writeEntry(t, root, "", u, 10, zeroTime)
	mp := newMemProvider()

	rc, err := newRecordCodec(codec.NameMsgpack, 0)
	if err != nil {
		t.Fatal(err)
	}
	accessed := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	payload, _ := rc.Encode(Record{URL: u, ContentType: "image/png", Size: 10, AccessedMs: accessed.UnixMilli()})
	_, _ = mp.Set(context.Background(), util.RecordKey(p), wire.EncodeRecord(0, payload), 0, 0)

	c, _ := newTestCache(t, Options{Root: root, Provider: mp})
	c.mu.Lock()
	e := c.entries[p]
	c.mu.Unlock()
	if e == nil || e.url != u || e.contentType != "image/png" || !e.accessed.Equal(accessed) {
		t.Fatalf("entry = %+v", e)
	}
}

func TestLoadSelfHealsRecords(t *testing.T) {
	cases := []struct {
		name   string
		value  func(t *testing.T) []byte
		reason string
	}{
		{"corrupt", func(*testing.T) []byte { return []byte("not a frame") }, "corrupt"},
		{"gen mismatch", func(*testing.T) []byte { return wire.EncodeRecord(7, []byte{0x80}) }, "gen_mismatch"},
		{"value decode", func(*testing.T) []byte { return wire.EncodeRecord(0, []byte{0xc1}) }, "value_decode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			p := writeEntry(t, root, "", "https://x.io/a.png", 10, zeroTime)
			mp := newMemProvider()
			_, _ = mp.Set(context.Background(), util.RecordKey(p), tc.value(t), 0, 0)

			h := &recHooks{}
			newTestCache(t, Options{Root: root, Provider: mp, Hooks: h})

			heals := h.snapshot().heals
			if len(heals) != 1 || heals[0] != tc.reason+":"+p {
				t.Fatalf("heals = %v", heals)
			}
			raw, ok, _ := mp.Get(context.Background(), util.RecordKey(p))
			if !ok {
				t.Fatal("record not rebuilt")
			}
			if _, _, err := wire.DecodeRecord(raw); err != nil {
				t.Fatalf("rebuilt record invalid: %v", err)
			}
		})
	}
}

func TestLoadIsCoalesced(t *testing.T) {
	c, err := New(Options{Root: t.TempDir(), Provider: newMemProvider()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ready int
	)
	c.OnReady(func() {
		mu.Lock()
		ready++
		mu.Unlock()
	})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Load(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if ready != 1 {
		t.Fatalf("OnReady fired %d times", ready)
	}

	late := false
	c.OnReady(func() { late = true })
	if !late {
		t.Fatal("OnReady after ready must run immediately")
	}
}

func TestRecordCodecs(t *testing.T) {
	want := Record{URL: "https://x.io/a.png", ContentType: "image/webp", Size: 1234, StatusCode: 200, CreatedMs: 1700000000000, AccessedMs: 1700000001000}
	for _, name := range []string{codec.NameJSON, codec.NameMsgpack, codec.NameCBOR, codec.NameProtobuf} {
		rc, err := newRecordCodec(name, 0)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		b, err := rc.Encode(want)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		got, err := rc.Decode(b)
		if err != nil || got != want {
			t.Fatalf("%s: got %+v err=%v", name, got, err)
		}
	}
	if _, err := newRecordCodec("yaml", 0); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("unknown codec err = %v", err)
	}
	rc, _ := newRecordCodec(codec.NameJSON, 8)
	b, _ := rc.Encode(want)
	if _, err := rc.Decode(b); err == nil {
		t.Fatal("oversized record decoded")
	}
}

// batchGens counts SnapshotMany calls.
type batchGens struct {
	*genstore.Local
	mu    sync.Mutex
	calls [][]string
}

func (g *batchGens) SnapshotMany(ctx context.Context, paths []string) (map[string]uint64, error) {
	g.mu.Lock()
	g.calls = append(g.calls, append([]string(nil), paths...))
	g.mu.Unlock()
	return g.Local.SnapshotMany(ctx, paths)
}

func TestCloseFlushesAccessTimesWithBatchedGens(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	const u = "https://x.io/seen.png"
	p := writeEntry(t, root, "", u, 10, time.Now().Add(-time.Hour))
	writeEntry(t, root, "", "https://x.io/idle.png", 10, time.Now().Add(-time.Hour))

	gs := &batchGens{Local: genstore.NewLocal(0, 0)}
	if _, err := gs.Bump(ctx, p); err != nil {
		t.Fatal(err)
	}
	c, mp := newTestCache(t, Options{Root: root, GenStore: gs})

	touched := time.Now().Truncate(time.Millisecond)
	if !c.Exists(p) {
		t.Fatal("entry not indexed")
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gs.mu.Lock()
	calls := gs.calls
	gs.mu.Unlock()
	if len(calls) != 1 || len(calls[0]) != 1 || calls[0][0] != p {
		t.Fatalf("SnapshotMany calls = %v", calls)
	}

	raw, ok, _ := mp.Get(ctx, util.RecordKey(p))
	if !ok {
		t.Fatal("record missing")
	}
	g, payload, err := wire.DecodeRecord(raw)
	if err != nil || g != 1 {
		t.Fatalf("record gen=%d err=%v", g, err)
	}
	rec, err := c.rec.Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if fromMs(rec.AccessedMs).Before(touched) {
		t.Fatalf("access time not flushed: %v < %v", fromMs(rec.AccessedMs), touched)
	}
}
