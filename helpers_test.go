package adsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type nopTransport struct{}

func (nopTransport) Do(context.Context, *Request) (*Response, error) {
	return nil, errors.New("no transport in tests")
}

func newTestClient(t *testing.T, mod func(*Options)) *Client {
	t.Helper()
	opts := Options{Transport: nopTransport{}}
	if mod != nil {
		mod(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

type reply struct {
	v    any
	tags []Tag
	err  error
}

// pending is one request held until the test answers it.
type pending struct {
	arg   string
	reply chan reply
}

func (p *pending) answer(v any, tags ...Tag) { p.reply <- reply{v: v, tags: tags} }
func (p *pending) fail(err error)            { p.reply <- reply{err: err} }

// gate is a fetch function whose requests block until answered.
type gate struct {
	issued chan *pending
}

func newGate() *gate { return &gate{issued: make(chan *pending, 64)} }

func (g *gate) fetch(ctx context.Context, _ Transport, arg string) (any, []Tag, error) {
	p := &pending{arg: arg, reply: make(chan reply, 1)}
	g.issued <- p
	select {
	case r := <-p.reply:
		return r.v, r.tags, r.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (g *gate) next(t *testing.T) *pending {
	t.Helper()
	select {
	case p := <-g.issued:
		return p
	case <-time.After(waitFor):
		t.Fatal("no request issued")
		return nil
	}
}

func (g *gate) none(t *testing.T) {
	t.Helper()
	select {
	case p := <-g.issued:
		t.Fatalf("unexpected request for %q", p.arg)
	case <-time.After(50 * time.Millisecond):
	}
}

// counter is a fetch function answering immediately from fn.
type counter struct {
	n  atomic.Int32
	fn func(arg string) (any, []Tag, error)
}

func (f *counter) fetch(_ context.Context, _ Transport, arg string) (any, []Tag, error) {
	f.n.Add(1)
	return f.fn(arg)
}

func (f *counter) calls() int { return int(f.n.Load()) }

func register(t *testing.T, c *Client, name string, fn FetchFunc) {
	t.Helper()
	require.NoError(t, c.Register(Endpoint{Name: name, Fetch: fn}))
}

// waitUpdate blocks until s signals and returns the new snapshot.
func waitUpdate(t *testing.T, s *Subscription, cond func(Result) bool) Result {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		if r := s.Result(); cond(r) {
			return r
		}
		select {
		case <-s.Updates():
		case <-deadline:
			t.Fatalf("condition not reached; last result %+v", s.Result())
		}
	}
}

func drain(s *Subscription) {
	for {
		select {
		case <-s.Updates():
		default:
			return
		}
	}
}

type dropped struct {
	key          CacheKey
	gen, written uint64
}

type recordingHooks struct {
	mu          sync.Mutex
	staleWrites []dropped
	failures    []CacheKey
	evictions   []CacheKey
	pushDrops   []string
	transitions [][2]ConnState
}

func (h *recordingHooks) StaleWriteDropped(key CacheKey, gen, written uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staleWrites = append(h.staleWrites, dropped{key, gen, written})
}

func (h *recordingHooks) FetchFailed(key CacheKey, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, key)
}

func (h *recordingHooks) EntryEvicted(key CacheKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictions = append(h.evictions, key)
}

func (h *recordingHooks) PushEventDropped(eventType, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushDrops = append(h.pushDrops, eventType+":"+reason)
}

func (h *recordingHooks) PushStateChanged(from, to ConnState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, [2]ConnState{from, to})
}

func (h *recordingHooks) snapshotDrops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.pushDrops...)
}

func (h *recordingHooks) evicted() []CacheKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]CacheKey(nil), h.evictions...)
}
