package imagecache

import "sync"

// serial runs posted funcs one at a time, in order, on a single goroutine.
// The queue is unbounded: posting never blocks and never drops while open.
type serial struct {
	mu     sync.Mutex
	cond   *sync.Cond
	fns    []func()
	closed bool
	done   chan struct{}
}

func newSerial() *serial {
	s := &serial{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *serial) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.fns) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.fns) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.fns[0]
		s.fns[0] = nil
		s.fns = s.fns[1:]
		s.mu.Unlock()

		fn()
	}
}

// post enqueues fn. Returns false once the queue is closed.
func (s *serial) post(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.fns = append(s.fns, fn)
	s.cond.Signal()
	return true
}

// do enqueues fn and waits for it to run. Must not be called from the queue's
// own goroutine.
func (s *serial) do(fn func()) bool {
	ran := make(chan struct{})
	if !s.post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	<-ran
	return true
}

// close stops accepting work. Already queued funcs still run.
func (s *serial) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// wait blocks until the goroutine exited (after close).
func (s *serial) wait() { <-s.done }
