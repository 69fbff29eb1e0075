package sse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/adsync"
)

type nopTransport struct{}

func (nopTransport) Do(context.Context, *adsync.Request) (*adsync.Response, error) {
	return nil, errors.New("unused")
}

type stubConn struct {
	mu     sync.Mutex
	onOpen func()
	onErr  func(error)
	closed bool
}

func (c *stubConn) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *stubConn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onErr = fn
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) OnMessage(func([]byte)) {}
func (c *stubConn) Start()                 {}

func (c *stubConn) open() {
	c.mu.Lock()
	fn := c.onOpen
	c.mu.Unlock()
	fn()
}

func (c *stubConn) fail(err error) {
	c.mu.Lock()
	fn := c.onErr
	c.mu.Unlock()
	fn(err)
}

// flakyDialer fails the first n dials.
type flakyDialer struct {
	mu    sync.Mutex
	fails int
	dials int
	conns []*stubConn
}

func (d *flakyDialer) Dial(context.Context, string) (adsync.PushConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fails > 0 {
		d.fails--
		return nil, errors.New("connection refused")
	}
	c := &stubConn{}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *flakyDialer) stats() (int, []*stubConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, append([]*stubConn(nil), d.conns...)
}

func TestSuperviseRedialsWithBackoff(t *testing.T) {
	c, err := adsync.New(adsync.Options{Transport: nopTransport{}})
	require.NoError(t, err)
	defer c.Close(context.Background())

	d := &flakyDialer{}
	r := c.NewReconciler(d)
	_, err = r.Acquire(context.Background(), "user-1")
	require.NoError(t, err)
	_, conns := d.stats()
	require.Len(t, conns, 1)
	conns[0].open()

	done := make(chan error, 1)
	go func() {
		done <- Supervise(context.Background(), r, d, "user-1", SuperviseOptions{
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		})
	}()

	d.mu.Lock()
	d.fails = 2
	d.mu.Unlock()
	conns[0].fail(errors.New("stream reset"))
	assert.Equal(t, adsync.ConnReconnecting, r.State())

	assert.Eventually(t, func() bool {
		dials, conns := d.stats()
		return dials == 4 && len(conns) == 2
	}, waitFor, time.Millisecond)
	assert.Eventually(t, func() bool { return r.State() == adsync.ConnConnecting }, waitFor, time.Millisecond)

	_, conns = d.stats()
	conns[1].open()
	assert.Equal(t, adsync.ConnOpen, r.State())

	require.NoError(t, r.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("supervisor did not stop on close")
	}
}

func TestSuperviseStopsWithContext(t *testing.T) {
	c, err := adsync.New(adsync.Options{Transport: nopTransport{}})
	require.NoError(t, err)
	defer c.Close(context.Background())

	r := c.NewReconciler(nil)
	_, err = r.Acquire(context.Background(), "user-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Supervise(ctx, r, &flakyDialer{}, "user-1", SuperviseOptions{}) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
