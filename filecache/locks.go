package filecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/unkn0wn-root/imagecache"
	"github.com/unkn0wn-root/imagecache/internal/util"
)

// Lock pins path for id. An identity holds at most one path; locking another
// path moves the pin. Locked entries are never pruned.
func (c *Cache) Lock(id imagecache.Identity, path string) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		e.accessed = now
		e.touched = true
	}
	prev, held := c.locks[id]
	if held && prev == path {
		return
	}
	if held {
		c.release(prev)
	}
	c.locks[id] = path
	c.lockCount[path]++
}

// Unlock drops the pin held by id, if any.
func (c *Cache) Unlock(id imagecache.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, held := c.locks[id]; held {
		delete(c.locks, id)
		c.release(prev)
	}
}

// IsLocked reports whether any identity pins path.
func (c *Cache) IsLocked(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockCount[path] > 0
}

// release must be called with c.mu held.
func (c *Cache) release(path string) {
	if n := c.lockCount[path]; n > 1 {
		c.lockCount[path] = n - 1
		return
	}
	delete(c.lockCount, path)
}

// acquireFile takes the cross-process write lock of an entry path. The
// returned func releases it.
func (c *Cache) acquireFile(ctx context.Context, path string) (unlock func() error, err error) {
	if err := os.MkdirAll(c.locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks directory: %w", err)
	}
	fl := flock.New(filepath.Join(c.locksDir, util.LockName(path)))

	locked, err := fl.TryLockContext(ctx, c.lockRetry)
	if err != nil {
		return nil, fmt.Errorf("acquire entry lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire entry lock: %w", ctx.Err())
	}
	return fl.Unlock, nil
}
