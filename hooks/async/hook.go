// Package asynchook moves hook delivery off the caller's goroutine.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    StaleEvery:    10, // sample logs: ~every 10th stale callback
//	    SelfHealEvery: 1,  // log every self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := filecache.New(filecache.Options{
//	    Root:  "/var/cache/images",
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
//	view := imagecache.New(cache, props, imagecache.WithHooks(hooks))
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/imagecache"
)

// Hooks forwards events to inner on worker goroutines. Events that do not fit
// the queue are dropped and counted; events after Close are dropped.
type Hooks struct {
	inner   imagecache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ imagecache.Hooks = (*Hooks)(nil)

func New(inner imagecache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns the number of events lost to a full queue or to Close.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) StaleCallback(id imagecache.Identity, ev string) {
	h.try(func() { h.inner.StaleCallback(id, ev) })
}
func (h *Hooks) RemovalWait(id imagecache.Identity, p string) {
	h.try(func() { h.inner.RemovalWait(id, p) })
}
func (h *Hooks) DownloadStarted(u, p string)        { h.try(func() { h.inner.DownloadStarted(u, p) }) }
func (h *Hooks) DownloadFailed(u string, err error) { h.try(func() { h.inner.DownloadFailed(u, err) }) }
func (h *Hooks) DownloadCanceled(u string)          { h.try(func() { h.inner.DownloadCanceled(u) }) }
func (h *Hooks) DownloadDiscarded(p, r string)      { h.try(func() { h.inner.DownloadDiscarded(p, r) }) }
func (h *Hooks) RecordSelfHeal(p, r string)         { h.try(func() { h.inner.RecordSelfHeal(p, r) }) }
func (h *Hooks) Evicted(p string, n int64)          { h.try(func() { h.inner.Evicted(p, n) }) }
func (h *Hooks) GenBumpError(p string, err error)   { h.try(func() { h.inner.GenBumpError(p, err) }) }
