package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/imagecache"
)

type countingHooks struct {
	imagecache.NopHooks
	mu      sync.Mutex
	evicted int
	block   chan struct{}
}

func (c *countingHooks) Evicted(string, int64) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.evicted++
	c.mu.Unlock()
}

func TestDeliversAndDrainsOnClose(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 2, 16)
	for i := 0; i < 10; i++ {
		h.Evicted("/p", 1)
	}
	h.Close()
	if inner.evicted != 10 || h.Dropped() != 0 {
		t.Fatalf("evicted=%d dropped=%d", inner.evicted, h.Dropped())
	}
}

func TestDropsWhenFullAndAfterClose(t *testing.T) {
	inner := &countingHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// one event held by the worker, one queued; the rest cannot fit
	for i := 0; i < 5; i++ {
		h.Evicted("/p", 1)
	}
	close(inner.block)
	h.Close()
	h.Evicted("/p", 1)

	if got := inner.evicted + int(h.Dropped()); got != 6 {
		t.Fatalf("delivered+dropped = %d, want 6", got)
	}
	if h.Dropped() < 3 {
		t.Fatalf("dropped = %d, want >= 3", h.Dropped())
	}
}
