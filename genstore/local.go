package genstore

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	gen     uint64
	touched time.Time
}

// LocalGenStore keeps generations in process memory.
//
// Forgetting a key does not restart it at zero: the store remembers the
// highest generation it ever pruned (the floor) and a forgotten key resumes
// above it. Generations therefore stay unique per key for the life of the
// store, however aggressive the retention.
type LocalGenStore struct {
	mu    sync.Mutex
	gens  map[string]counter
	floor uint64
	now   func() time.Time

	stop context.CancelFunc
	done chan struct{}
	once sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

// NewLocalGenStore starts a sweep every interval that forgets keys idle for
// longer than retention. A non-positive interval or retention disables the
// sweep.
func NewLocalGenStore(interval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{
		gens: make(map[string]counter),
		now:  time.Now,
	}
	if interval <= 0 || retention <= 0 {
		return s
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go s.sweep(ctx, interval, retention)
	return s
}

func (s *LocalGenStore) sweep(ctx context.Context, interval, retention time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Cleanup(retention)
		}
	}
}

// Snapshot returns the key's generation, or the floor for a key the store
// does not hold.
func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.gens[k]; ok {
		return c.gen, nil
	}
	return s.floor, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.gens[k]
	if !ok {
		c.gen = s.floor
	}
	c.gen++
	c.touched = s.now()
	s.gens[k] = c
	return c.gen, nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-retention)
	for k, c := range s.gens {
		if c.touched.Before(cutoff) {
			s.floor = max(s.floor, c.gen)
			delete(s.gens, k)
		}
	}
}

// Len reports how many keys the store currently holds.
func (s *LocalGenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gens)
}

// Close stops the sweep. Safe to call more than once.
func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
			<-s.done
		}
	})
	return nil
}
