package filecache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/imagecache"
	"github.com/unkn0wn-root/imagecache/internal/util"
)

// IsRemoving reports whether a removal of path is in progress.
func (c *Cache) IsRemoving(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.removing[path]
	return ok
}

// OnRemoved runs fn with the removal's result once the pending removal of
// path completes. Without a pending removal fn runs immediately with nil.
func (c *Cache) OnRemoved(path string, fn func(error)) {
	c.mu.Lock()
	if waiters, ok := c.removing[path]; ok {
		c.removing[path] = append(waiters, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(nil)
}

// Remove deletes the entry of uri in namespace dirName.
func (c *Cache) Remove(ctx context.Context, uri, dirName string) error {
	return c.RemoveFile(ctx, c.Path(uri, dirName))
}

// RemoveFile deletes the entry at path even when it is locked. If a removal
// of path is already running, RemoveFile waits for it and returns its result.
func (c *Cache) RemoveFile(ctx context.Context, path string) error {
	if !c.within(path) {
		return ErrOutsideRoot
	}
	c.mu.Lock()
	if waiters, ok := c.removing[path]; ok {
		ch := make(chan error, 1)
		c.removing[path] = append(waiters, func(err error) { ch <- err })
		c.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.removing[path] = nil
	c.mu.Unlock()

	_, err := c.finishRemove(ctx, path)
	return err
}

// finishRemove deletes path, which the caller marked as removing, and fires
// the removal waiters. It returns the size the entry had in the index.
func (c *Cache) finishRemove(ctx context.Context, path string) (int64, error) {
	c.bumpGen(ctx, path)

	var rerr RemoveError
	if err := c.prov.Del(ctx, util.RecordKey(path)); err != nil {
		rerr.RecordErr = err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		rerr.FileErr = err
	}

	c.mu.Lock()
	var size int64
	if e, ok := c.entries[path]; ok {
		size = e.size
		c.total -= e.size
		delete(c.entries, path)
	}
	waiters := c.removing[path]
	delete(c.removing, path)
	c.mu.Unlock()

	var err error
	if rerr.RecordErr != nil || rerr.FileErr != nil {
		rerr.Path = path
		err = &rerr
		c.log.Warn("entry removal incomplete", imagecache.Fields{"path": path, "err": err})
	} else {
		c.log.Debug("entry removed", imagecache.Fields{"path": path, "size": size})
	}
	for _, fn := range waiters {
		fn(err)
	}
	return size, err
}

// RemoveAll deletes every entry in every namespace, indexed or only on disk.
// Entries are removed concurrently, at most ScanConcurrency at a time; the
// first error is returned after every entry was attempted. Emptied namespace
// directories are removed last.
func (c *Cache) RemoveAll(ctx context.Context) error {
	paths := make(map[string]struct{})
	c.mu.Lock()
	for p := range c.entries {
		paths[p] = struct{}{}
	}
	c.mu.Unlock()

	dirs, err := c.namespaces()
	if err != nil {
		return err
	}
	// files not yet indexed (another process, or before Load)
	for _, d := range dirs {
		_ = filepath.WalkDir(d, func(p string, de fs.DirEntry, err error) error {
			if err == nil && de.Type().IsRegular() {
				paths[p] = struct{}{}
			}
			return nil
		})
	}

	var g errgroup.Group
	g.SetLimit(c.scanLimit)
	for p := range paths {
		g.Go(func() error { return c.RemoveFile(ctx, p) })
	}
	err = g.Wait()

	for _, d := range dirs {
		removeEmptyDirs(d)
	}
	c.log.Info("cache cleared", imagecache.Fields{"root": c.root, "entries": len(paths), "err": err})
	return err
}

// namespaces lists the top-level namespace directories under the root.
func (c *Cache) namespaces() ([]string, error) {
	ents, err := os.ReadDir(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() || e.Name() == tmpDirName || e.Name() == locksDirName {
			continue
		}
		out = append(out, filepath.Join(c.root, e.Name()))
	}
	return out, nil
}

// removeEmptyDirs deletes dir and its subdirectories when they hold no files.
func removeEmptyDirs(dir string) bool {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	empty := true
	for _, e := range ents {
		if !e.IsDir() || !removeEmptyDirs(filepath.Join(dir, e.Name())) {
			empty = false
		}
	}
	if empty {
		return os.Remove(dir) == nil
	}
	return false
}
