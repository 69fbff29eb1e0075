// Package asynchook moves adsync.Hooks calls off the caller's goroutine.
//
// Several hooks fire while the client lock is held; wrap a slow sink
// (network exporter, remote log) so it never stalls queries:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{EvictedEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := adsync.New(adsync.Options{Transport: t, Hooks: hooks})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/adsync"
)

type Hooks struct {
	inner   adsync.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on q
	closed  bool
	dropped atomic.Uint64
}

var _ adsync.Hooks = (*Hooks)(nil)

func New(inner adsync.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = adsync.NopHooks{}
	}
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

// Close drains queued events and stops the workers. Events after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
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

func (h *Hooks) StaleWriteDropped(k adsync.CacheKey, gen, written uint64) {
	h.try(func() { h.inner.StaleWriteDropped(k, gen, written) })
}
func (h *Hooks) FetchFailed(k adsync.CacheKey, err error) {
	h.try(func() { h.inner.FetchFailed(k, err) })
}
func (h *Hooks) EntryEvicted(k adsync.CacheKey) { h.try(func() { h.inner.EntryEvicted(k) }) }
func (h *Hooks) PushEventDropped(typ, reason string) {
	h.try(func() { h.inner.PushEventDropped(typ, reason) })
}
func (h *Hooks) PushStateChanged(from, to adsync.ConnState) {
	h.try(func() { h.inner.PushStateChanged(from, to) })
}
