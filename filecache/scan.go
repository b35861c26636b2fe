package filecache

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/imagecache"
)

// scan walks every namespace in parallel and builds index entries from the
// files found. Records supply URL, content type and access time; a file
// without a usable record gets a fresh one.
func (c *Cache) scan(ctx context.Context) (map[string]*entry, error) {
	dirs, err := c.namespaces()
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		found = make(map[string]*entry)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.scanLimit)
	for _, d := range dirs {
		g.Go(func() error {
			return filepath.WalkDir(d, func(p string, de fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				if !de.Type().IsRegular() {
					return nil
				}
				fi, err := de.Info()
				if err != nil {
					return nil // removed while walking
				}
				e := c.entryFromDisk(gctx, p, fi.Size(), fi.ModTime())
				mu.Lock()
				found[p] = e
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

func (c *Cache) entryFromDisk(ctx context.Context, path string, size int64, mod time.Time) *entry {
	e := &entry{size: size, created: mod, accessed: mod}
	r, ok := c.readRecord(ctx, path)
	if !ok {
		// rebuild what the file can tell
		g := c.snapshotGen(ctx, path)
		if err := c.writeRecord(ctx, path, e.record(), g); err != nil {
			c.log.Warn("record rebuild failed", imagecache.Fields{"path": path, "err": err})
		}
		return e
	}
	e.url, e.contentType = r.URL, r.ContentType
	if t := fromMs(r.CreatedMs); !t.IsZero() {
		e.created = t
	}
	if t := fromMs(r.AccessedMs); !t.IsZero() {
		e.accessed = t
	}
	return e
}
