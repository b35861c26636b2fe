package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen       uint64
	updatedAt time.Time
}

// Local keeps generations in-process. It is the filecache default.
// With cleanupInterval and retention > 0 a background loop forgets paths not
// bumped within retention; a forgotten path reads as generation 0 again.
type Local struct {
	mu     sync.RWMutex
	gens   map[string]localEntry
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Store = (*Local)(nil)

func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{gens: make(map[string]localEntry)}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, path string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[path]
	s.mu.RUnlock()
	return e.gen, nil
}

// SnapshotMany reads all paths under one read lock.
func (s *Local) SnapshotMany(_ context.Context, paths []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(paths))
	s.mu.RLock()
	for _, p := range paths {
		out[p] = s.gens[p].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, path string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[path]
	e.gen++
	e.updatedAt = now
	s.gens[path] = e
	s.mu.Unlock()
	return e.gen, nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for p, e := range s.gens {
		if e.updatedAt.Before(cutoff) {
			delete(s.gens, p)
		}
	}
	s.mu.Unlock()
}

// Close stops the cleanup loop. Safe to call more than once.
func (s *Local) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
