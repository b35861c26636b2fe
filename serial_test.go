package imagecache

import (
	"sync"
	"testing"
)

func TestSerialRunsInOrder(t *testing.T) {
	s := newSerial()
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		s.post(func() { got = append(got, i) })
	}
	s.do(func() {})
	for i, v := range got {
		if v != i {
			t.Fatalf("order broken at %d: %d", i, v)
		}
	}
	s.close()
	s.wait()
}

func TestSerialDrainsQueuedWorkOnClose(t *testing.T) {
	s := newSerial()
	block := make(chan struct{})
	var mu sync.Mutex
	ran := 0
	s.post(func() { <-block })
	for i := 0; i < 10; i++ {
		s.post(func() { mu.Lock(); ran++; mu.Unlock() })
	}
	s.close()
	if s.post(func() {}) {
		t.Fatalf("post accepted after close")
	}
	if s.do(func() {}) {
		t.Fatalf("do accepted after close")
	}
	close(block)
	s.wait()
	if ran != 10 {
		t.Fatalf("ran %d queued funcs, want 10", ran)
	}
}

func TestSerialPostFromInsideDoesNotBlock(t *testing.T) {
	s := newSerial()
	defer func() { s.close(); s.wait() }()
	done := make(chan struct{})
	s.post(func() {
		s.post(func() { close(done) })
	})
	<-done
}
