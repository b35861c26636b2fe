package filecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/imagecache"
)

// memProvider is an in-memory provider.Provider.
type memProvider struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, k string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.m[k]
	return b, ok, nil
}

func (p *memProvider) Set(_ context.Context, k string, v []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[k] = append([]byte(nil), v...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, k string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, k)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(k string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[k]
	return ok
}

// hookLog is what recHooks saw.
type hookLog struct {
	heals     []string
	evicted   []string
	discarded []string
	canceled  []string
	failed    []string
}

// recHooks records the hook events tests assert on.
type recHooks struct {
	imagecache.NopHooks
	mu  sync.Mutex
	log hookLog
}

func (h *recHooks) RecordSelfHeal(path, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.heals = append(h.log.heals, reason+":"+path)
}

func (h *recHooks) Evicted(path string, _ int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.evicted = append(h.log.evicted, path)
}

func (h *recHooks) DownloadDiscarded(path, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.discarded = append(h.log.discarded, path)
}

func (h *recHooks) DownloadCanceled(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.canceled = append(h.log.canceled, url)
}

func (h *recHooks) DownloadFailed(url string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.failed = append(h.log.failed, url)
}

func (h *recHooks) snapshot() hookLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return hookLog{
		heals:     append([]string(nil), h.log.heals...),
		evicted:   append([]string(nil), h.log.evicted...),
		discarded: append([]string(nil), h.log.discarded...),
		canceled:  append([]string(nil), h.log.canceled...),
		failed:    append([]string(nil), h.log.failed...),
	}
}

// newTestCache builds a loaded cache over a temp root and an in-memory
// provider unless opts say otherwise.
func newTestCache(t *testing.T, opts Options) (*Cache, *memProvider) {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	mp, _ := opts.Provider.(*memProvider)
	if opts.Provider == nil {
		mp = newMemProvider()
		opts.Provider = mp
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c, mp
}

// writeEntry places a file of size bytes where the cache expects uri.
func writeEntry(t *testing.T, root, dir, uri string, size int, mod time.Time) string {
	t.Helper()
	c := &Cache{root: root}
	p := c.Path(uri, dir)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mod.IsZero() {
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

// outcome collects the callbacks of one download request.
type outcome struct {
	mu       sync.Mutex
	events   []string
	file     imagecache.File
	err      error
	progress [][2]int64
	done     chan struct{}
}

func request(url, dir string) (imagecache.DownloadRequest, *outcome) {
	o := &outcome{done: make(chan struct{})}
	add := func(ev string) {
		o.mu.Lock()
		o.events = append(o.events, ev)
		o.mu.Unlock()
	}
	return imagecache.DownloadRequest{
		URL:     url,
		DirName: dir,
		OnProgress: func(loaded, total int64) {
			o.mu.Lock()
			o.progress = append(o.progress, [2]int64{loaded, total})
			o.mu.Unlock()
		},
		OnLoad: func(f imagecache.File) {
			o.mu.Lock()
			o.file = f
			o.mu.Unlock()
			add("load")
		},
		OnError: func(err error) {
			o.mu.Lock()
			o.err = err
			o.mu.Unlock()
			add("error")
		},
		OnCancel: func() {
			add("cancel")
			close(o.done)
		},
		OnLoadEnd: func() {
			add("load_end")
			close(o.done)
		},
	}, o
}

func (o *outcome) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("download did not finish; events=%v", o.eventList())
	}
}

func (o *outcome) eventList() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// gatedServer serves body after release is closed and reports each request
// on started.
type gatedServer struct {
	*httptest.Server
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	hits    int
}

func newGatedServer(t *testing.T, body []byte) *gatedServer {
	t.Helper()
	g := &gatedServer{started: make(chan struct{}, 16), release: make(chan struct{})}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.hits++
		g.mu.Unlock()
		g.started <- struct{}{}
		select {
		case <-g.release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(func() {
		g.open()
		g.Close()
	})
	return g
}

func (g *gatedServer) open() { g.once.Do(func() { close(g.release) }) }

func (g *gatedServer) hitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits
}

func waitStarted(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
}

var zeroTime time.Time
