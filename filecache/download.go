package filecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/unkn0wn-root/imagecache"
)

// transfer is one HTTP fetch into one entry path. Requests for a path that
// already has a transfer subscribe to it instead of starting another.
type transfer struct {
	url     string
	path    string
	method  string
	headers map[string]string
	body    []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []*subscriber
}

// subscriber is one Download call. Its callbacks are serialized by mu, and
// done flips once the terminal callback was chosen.
type subscriber struct {
	req  imagecache.DownloadRequest
	stop func() bool

	mu   sync.Mutex
	done bool
}

// Download starts fetching req.URL into Path(req.URL, req.DirName) and
// returns. When a transfer of that path is already running, req joins it and
// receives the same outcome. Canceling ctx detaches req with OnCancel; the
// transfer itself is canceled once no request is attached.
func (c *Cache) Download(ctx context.Context, req imagecache.DownloadRequest) error {
	if c.closed.Load() {
		return imagecache.ErrClosed
	}
	if !c.IsReady() {
		return imagecache.ErrNotReady
	}
	if !isInternetURL(req.URL) {
		return fmt.Errorf("%w: %q", imagecache.ErrNotRemote, req.URL)
	}
	path := c.Path(req.URL, req.DirName)
	s := &subscriber{req: req}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return imagecache.ErrClosed
	}
	t, joined := c.transfers[path]
	if !joined {
		t = c.newTransfer(req, path)
		c.transfers[path] = t
		c.wg.Add(1)
	}
	s.stop = context.AfterFunc(ctx, func() { c.detach(t, s) })
	t.mu.Lock()
	t.subs = append(t.subs, s)
	t.mu.Unlock()
	c.mu.Unlock()

	if joined {
		c.log.Debug("download joined in-flight transfer", imagecache.Fields{"url": req.URL, "path": path})
		return nil
	}
	go c.run(t)
	return nil
}

func (c *Cache) newTransfer(req imagecache.DownloadRequest, path string) *transfer {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	return &transfer{
		url:     req.URL,
		path:    path,
		method:  normalizeMethod(req.Method),
		headers: maps.Clone(req.Headers),
		body:    append([]byte(nil), req.Body...),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// CancelDownload cancels every running transfer of uri, in any namespace.
// Their requests get OnCancel. Nothing running is not an error.
func (c *Cache) CancelDownload(_ context.Context, uri string) error {
	var hit []*transfer
	c.mu.Lock()
	for _, t := range c.transfers {
		if t.url == uri {
			hit = append(hit, t)
		}
	}
	c.mu.Unlock()

	for _, t := range hit {
		c.log.Debug("download cancel requested", imagecache.Fields{"url": uri, "path": t.path})
		t.cancel()
	}
	return nil
}

// detach ends s with OnCancel after its own context was canceled.
func (c *Cache) detach(t *transfer, s *subscriber) {
	if !s.finish(func() {
		if fn := s.req.OnCancel; fn != nil {
			fn()
		}
	}) {
		return
	}

	t.mu.Lock()
	left := 0
	for _, o := range t.subs {
		if !o.isDone() {
			left++
		}
	}
	t.mu.Unlock()
	if left == 0 {
		t.cancel()
	}
}

func (s *subscriber) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// deliver runs fn unless s already finished.
func (s *subscriber) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		fn()
	}
}

// finish runs the terminal callbacks fn exactly once per subscriber.
func (s *subscriber) finish(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	fn()
	return true
}

func (t *transfer) snapshot() []*subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*subscriber(nil), t.subs...)
}

func (t *transfer) progress(loaded, total int64) {
	for _, s := range t.snapshot() {
		if fn := s.req.OnProgress; fn != nil {
			s.deliver(func() { fn(loaded, total) })
		}
	}
}

func (c *Cache) run(t *transfer) {
	defer c.wg.Done()
	defer t.cancel()

	f, err := c.fetch(t)

	c.mu.Lock()
	delete(c.transfers, t.path)
	c.mu.Unlock()

	canceled := err != nil && t.ctx.Err() != nil && !errors.Is(t.ctx.Err(), context.DeadlineExceeded)
	switch {
	case err == nil:
		c.log.Info("download finished", imagecache.Fields{"url": t.url, "path": t.path, "size": f.Size})
	case canceled:
		c.hooks.DownloadCanceled(t.url)
		c.log.Debug("download canceled", imagecache.Fields{"url": t.url, "path": t.path})
	default:
		c.hooks.DownloadFailed(t.url, err)
		c.log.Warn("download failed", imagecache.Fields{"url": t.url, "path": t.path, "err": err})
	}

	for _, s := range t.snapshot() {
		s.stop()
		s.finish(func() {
			r := s.req
			switch {
			case err == nil:
				call(r.OnLoad, f)
				callEnd(r.OnLoadEnd)
			case canceled:
				callEnd(r.OnCancel)
			default:
				call(r.OnError, err)
				callEnd(r.OnLoadEnd)
			}
		})
	}

	if err == nil {
		if perr := c.pruneIfNeeded(c.ctx); perr != nil {
			c.log.Warn("prune after download failed", imagecache.Fields{"err": perr})
		}
	}
}

func call[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}

func callEnd(fn func()) {
	if fn != nil {
		fn()
	}
}

// fetch runs the transfer pipeline: lock the entry across processes, reuse a
// file another writer completed meanwhile, else stream the body into .tmp
// and rename it into place unless the entry was removed during the transfer.
func (c *Cache) fetch(t *transfer) (imagecache.File, error) {
	ctx := t.ctx
	observed := c.snapshotGen(ctx, t.path)
	c.hooks.DownloadStarted(t.url, t.path)
	c.log.Debug("download started", imagecache.Fields{"url": t.url, "path": t.path, "gen": observed})

	unlock, err := c.acquireFile(ctx, t.path)
	if err != nil {
		return imagecache.File{}, c.downloadErr(t, err)
	}
	defer func() { _ = unlock() }()

	if e, ok := c.adopt(t.path); ok {
		c.log.Debug("entry completed by another writer", imagecache.Fields{"path": t.path})
		return imagecache.File{Path: t.path, URL: t.url, Size: e.size, ContentType: e.contentType, StatusCode: http.StatusOK}, nil
	}

	req := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if len(t.headers) > 0 {
		req.SetHeaders(t.headers)
	}
	if len(t.body) > 0 {
		req.SetBody(t.body)
	}
	resp, err := req.Execute(t.method, t.url)
	if err != nil {
		return imagecache.File{}, c.downloadErr(t, err)
	}
	defer resp.RawResponse.Body.Close()

	if code := resp.StatusCode(); code >= http.StatusBadRequest {
		return imagecache.File{}, &imagecache.StatusError{URL: t.url, StatusCode: code}
	}

	tmp, err := os.CreateTemp(c.tmpDir, "dl-*")
	if err != nil {
		return imagecache.File{}, c.downloadErr(t, err)
	}
	tmpName := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpName)
		}
	}()

	pw := &progressWriter{total: resp.RawResponse.ContentLength, report: t.progress}
	n, err := io.Copy(tmp, io.TeeReader(resp.RawResponse.Body, pw))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return imagecache.File{}, c.downloadErr(t, err)
	}

	if now := c.snapshotGen(ctx, t.path); now != observed {
		return imagecache.File{}, c.discard(t)
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return imagecache.File{}, c.downloadErr(t, err)
	}

	created := time.Now()
	e := &entry{
		size:        n,
		url:         t.url,
		contentType: resp.Header().Get("Content-Type"),
		created:     created,
		accessed:    created,
	}

	c.mu.Lock()
	if _, removing := c.removing[t.path]; removing {
		c.mu.Unlock()
		return imagecache.File{}, c.discard(t)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		c.mu.Unlock()
		return imagecache.File{}, c.downloadErr(t, err)
	}
	keep = true
	if old, ok := c.entries[t.path]; ok {
		c.total -= old.size
	}
	c.entries[t.path] = e
	c.total += n
	c.mu.Unlock()

	rec := e.record()
	rec.StatusCode = resp.StatusCode()
	if err := c.writeRecord(ctx, t.path, rec, observed); err != nil {
		c.log.Warn("record write failed", imagecache.Fields{"path": t.path, "err": err})
	}

	return imagecache.File{
		Path:        t.path,
		URL:         t.url,
		Size:        n,
		ContentType: e.contentType,
		StatusCode:  resp.StatusCode(),
	}, nil
}

func (c *Cache) discard(t *transfer) error {
	c.hooks.DownloadDiscarded(t.path, "removed")
	c.log.Debug("download discarded; entry removed meanwhile", imagecache.Fields{"path": t.path})
	return &imagecache.DownloadError{URL: t.url, Path: t.path, Err: imagecache.ErrEntryRemoved}
}

func (c *Cache) downloadErr(t *transfer, err error) error {
	if cerr := t.ctx.Err(); cerr != nil {
		err = cerr
	}
	return &imagecache.DownloadError{URL: t.url, Path: t.path, Err: err}
}

// progressWriter counts body bytes as they stream into the temp file.
type progressWriter struct {
	loaded int64
	total  int64 // -1 when unknown
	report func(loaded, total int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.loaded += int64(len(p))
	w.report(w.loaded, w.total)
	return len(p), nil
}
