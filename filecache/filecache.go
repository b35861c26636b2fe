// Package filecache is an on-disk image cache implementing imagecache.Manager.
//
// Entries live at <Root>/<dirName>/<name>, where name derives from the URL
// alone, so Path is a pure function. Alongside each file the cache keeps a
// metadata record in a provider, framed with the entry's generation from a
// genstore. Removing an entry bumps its generation, which invalidates its
// record and makes any download of that path still in flight discard its body.
//
// Downloads run over resty on their own goroutines. Concurrent downloads of
// one path share a single transfer; writers in other processes are held off
// with a file lock under <Root>/.locks. Bodies are staged in <Root>/.tmp and
// renamed into place.
//
// Locks taken by Lock pin entries against Prune, which evicts the least
// recently used unlocked entries once TotalSize exceeds MaxSize.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"resty.dev/v3"

	"github.com/unkn0wn-root/imagecache"
	"github.com/unkn0wn-root/imagecache/codec"
	gen "github.com/unkn0wn-root/imagecache/genstore"
	"github.com/unkn0wn-root/imagecache/internal/util"
	pr "github.com/unkn0wn-root/imagecache/provider"
	"github.com/unkn0wn-root/imagecache/provider/ristretto"
)

const (
	tmpDirName   = ".tmp"
	locksDirName = ".locks"
)

var _ imagecache.Manager = (*Cache)(nil)

// entry is the in-memory index record of one file on disk.
type entry struct {
	size        int64
	url         string
	contentType string
	created     time.Time
	accessed    time.Time
	touched     bool // accessed moved since the record was written
}

type Cache struct {
	root      string
	tmpDir    string
	locksDir  string
	prov      pr.Provider
	rec       codec.Codec[Record]
	gen       gen.Store
	log       imagecache.Logger
	hooks     imagecache.Hooks
	client    *resty.Client
	timeout   time.Duration
	recordTTL time.Duration
	scanLimit int
	lockRetry time.Duration

	ctx    context.Context // parent of every transfer; canceled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	loads  singleflight.Group

	readyMu      sync.Mutex
	ready        bool
	readyWaiters []func()

	mu        sync.Mutex
	entries   map[string]*entry
	total     int64
	maxSize   int64
	ratio     float64
	locks     map[imagecache.Identity]string
	lockCount map[string]int
	removing  map[string][]func(error)
	transfers map[string]*transfer
}

// New creates a cache rooted at opts.Root. The cache is not ready until Load
// has scanned the root.
func New(opts Options) (*Cache, error) {
	if opts.Root == "" {
		return nil, ErrRootRequired
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("filecache: resolve root: %w", err)
	}
	ratio := util.Coalesce(opts.ClearingRatio, defaultClearingRatio)
	if ratio <= 0 || ratio > 1 {
		return nil, ErrInvalidRatio
	}
	maxSize := util.Coalesce(opts.MaxSize, defaultMaxSize)
	if maxSize < 0 {
		return nil, ErrInvalidMaxSize
	}
	rc, err := newRecordCodec(opts.codecName(), util.Coalesce(opts.MaxRecordSize, defaultMaxRecordSize))
	if err != nil {
		return nil, err
	}

	prov := opts.Provider
	if prov == nil {
		p, err := ristretto.New(ristretto.Config{})
		if err != nil {
			return nil, fmt.Errorf("filecache: default provider: %w", err)
		}
		prov = p
	}
	gs := opts.GenStore
	if gs == nil {
		gs = gen.NewLocal(defaultGenSweep, util.Coalesce(opts.GenRetention, defaultGenRetention))
	}
	client := opts.Client
	if client == nil {
		client = resty.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		root:      root,
		tmpDir:    filepath.Join(root, tmpDirName),
		locksDir:  filepath.Join(root, locksDirName),
		prov:      prov,
		rec:       rc,
		gen:       gs,
		log:       util.Coalesce[imagecache.Logger](opts.Logger, imagecache.NopLogger{}),
		hooks:     util.Coalesce[imagecache.Hooks](opts.Hooks, imagecache.NopHooks{}),
		client:    client,
		timeout:   opts.Timeout,
		recordTTL: opts.RecordTTL,
		scanLimit: util.Coalesce(opts.ScanConcurrency, defaultScanConcurrency),
		lockRetry: util.Coalesce(opts.LockRetry, defaultLockRetry),
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]*entry),
		maxSize:   maxSize,
		ratio:     ratio,
		locks:     make(map[imagecache.Identity]string),
		lockCount: make(map[string]int),
		removing:  make(map[string][]func(error)),
		transfers: make(map[string]*transfer),
	}
	return c, nil
}

// Root returns the absolute cache directory.
func (c *Cache) Root() string { return c.root }

// Load scans the root and rebuilds the index, then marks the cache ready.
// Concurrent calls share one scan. Calling Load again rescans.
func (c *Cache) Load(ctx context.Context) error {
	if c.closed.Load() {
		return imagecache.ErrClosed
	}
	_, err, _ := c.loads.Do("load", func() (any, error) {
		return nil, c.load(ctx)
	})
	return err
}

func (c *Cache) load(ctx context.Context) error {
	for _, d := range []string{c.root, c.tmpDir, c.locksDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("filecache: create %s: %w", d, err)
		}
	}
	c.clearTmp()

	start := time.Now()
	found, err := c.scan(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = make(map[string]*entry, len(found))
	c.total = 0
	for p, e := range found {
		if _, inFlight := c.transfers[p]; inFlight {
			continue
		}
		c.entries[p] = e
		c.total += e.size
	}
	total, n := c.total, len(c.entries)
	c.mu.Unlock()

	c.log.Info("cache loaded", imagecache.Fields{"root": c.root, "entries": n, "bytes": total, "took": time.Since(start)})
	c.markReady()

	if err := c.pruneIfNeeded(ctx); err != nil {
		c.log.Warn("prune after load failed", imagecache.Fields{"err": err})
	}
	return nil
}

// clearTmp drops bodies left behind by transfers of a previous process.
func (c *Cache) clearTmp() {
	ents, err := os.ReadDir(c.tmpDir)
	if err != nil {
		return
	}
	c.mu.Lock()
	busy := len(c.transfers) > 0
	c.mu.Unlock()
	if busy {
		return
	}
	for _, e := range ents {
		_ = os.RemoveAll(filepath.Join(c.tmpDir, e.Name()))
	}
}

func (c *Cache) markReady() {
	c.readyMu.Lock()
	if c.ready {
		c.readyMu.Unlock()
		return
	}
	c.ready = true
	waiters := c.readyWaiters
	c.readyWaiters = nil
	c.readyMu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

func (c *Cache) IsReady() bool {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	return c.ready
}

// OnReady runs fn once the first Load finished; immediately if it already has.
func (c *Cache) OnReady(fn func()) {
	c.readyMu.Lock()
	if !c.ready {
		c.readyWaiters = append(c.readyWaiters, fn)
		c.readyMu.Unlock()
		return
	}
	c.readyMu.Unlock()
	fn()
}

// Close cancels in-flight transfers (their requests get OnCancel), waits for
// them, persists access times and releases the record and generation stores.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	already := c.closed.Swap(true)
	c.mu.Unlock()
	if already {
		return nil
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.flushAccess(ctx)

	var errs []error
	if err := c.gen.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close genstore: %w", err))
	}
	if err := c.prov.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close provider: %w", err))
	}
	return errors.Join(errs...)
}

// flushAccess writes records of entries whose access time moved.
func (c *Cache) flushAccess(ctx context.Context) {
	type pending struct {
		path string
		rec  Record
	}
	var todo []pending
	c.mu.Lock()
	for p, e := range c.entries {
		if !e.touched {
			continue
		}
		e.touched = false
		todo = append(todo, pending{path: p, rec: e.record()})
	}
	c.mu.Unlock()

	if len(todo) == 0 {
		return
	}

	paths := make([]string, len(todo))
	for i, t := range todo {
		paths[i] = t.path
	}
	gens, err := c.gen.SnapshotMany(ctx, paths)
	if err != nil {
		// writes below skip on a 0 mismatch; the next Load rebuilds
		c.log.Warn("gen snapshot error", imagecache.Fields{"paths": len(paths), "err": err})
		gens = map[string]uint64{}
	}
	for _, t := range todo {
		if err := c.writeRecord(ctx, t.path, t.rec, gens[t.path]); err != nil {
			c.log.Warn("record flush failed", imagecache.Fields{"path": t.path, "err": err})
		}
	}
}

func (e *entry) record() Record {
	return Record{
		URL:         e.url,
		ContentType: e.contentType,
		Size:        e.size,
		CreatedMs:   toMs(e.created),
		AccessedMs:  toMs(e.accessed),
	}
}

// TotalSize returns the bytes held by indexed entries.
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Len returns the number of indexed entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) MaxSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize changes the budget. Shrinking below TotalSize prunes right away.
func (c *Cache) SetMaxSize(ctx context.Context, n int64) error {
	if n <= 0 {
		return ErrInvalidMaxSize
	}
	c.mu.Lock()
	c.maxSize = n
	c.mu.Unlock()
	return c.pruneIfNeeded(ctx)
}

func (c *Cache) ClearingRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratio
}

// SetClearingRatio sets the share of MaxSize a prune frees, in (0, 1].
func (c *Cache) SetClearingRatio(r float64) error {
	if r <= 0 || r > 1 {
		return ErrInvalidRatio
	}
	c.mu.Lock()
	c.ratio = r
	c.mu.Unlock()
	return nil
}
