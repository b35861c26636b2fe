package filecache

import (
	"context"
	"sort"

	"github.com/unkn0wn-root/imagecache"
)

// Prune evicts least recently used unlocked entries once TotalSize exceeds
// MaxSize, until TotalSize drops to MaxSize*(1-ClearingRatio). Entries being
// downloaded or removed are skipped. It returns the first removal error.
func (c *Cache) Prune(ctx context.Context) error {
	c.mu.Lock()
	if c.total <= c.maxSize {
		c.mu.Unlock()
		return nil
	}
	target := int64(float64(c.maxSize) * (1 - c.ratio))
	type cand struct {
		path string
		e    *entry
	}
	cands := make([]cand, 0, len(c.entries))
	for p, e := range c.entries {
		cands = append(cands, cand{p, e})
	}
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].e.accessed.Before(cands[j].e.accessed)
	})
	paths := make([]string, len(cands))
	for i, cd := range cands {
		paths[i] = cd.path
	}
	c.mu.Unlock()

	var (
		firstErr error
		freed    int64
		evicted  int
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.TotalSize() <= target {
			break
		}
		size, ok, err := c.evict(ctx, p)
		if !ok {
			continue
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		freed += size
		evicted++
	}
	c.log.Info("cache pruned", imagecache.Fields{"evicted": evicted, "freed": freed, "total": c.TotalSize(), "target": target})
	return firstErr
}

func (c *Cache) pruneIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	over := c.total > c.maxSize
	c.mu.Unlock()
	if !over {
		return nil
	}
	return c.Prune(ctx)
}

// evict removes path unless it is locked, downloading or already being
// removed. ok reports whether a removal ran.
func (c *Cache) evict(ctx context.Context, path string) (size int64, ok bool, err error) {
	c.mu.Lock()
	_, inIndex := c.entries[path]
	_, removing := c.removing[path]
	_, inFlight := c.transfers[path]
	if !inIndex || removing || inFlight || c.lockCount[path] > 0 {
		c.mu.Unlock()
		return 0, false, nil
	}
	c.removing[path] = nil
	c.mu.Unlock()

	size, err = c.finishRemove(ctx, path)
	if err == nil {
		c.hooks.Evicted(path, size)
	}
	return size, true, err
}
