package adsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidates(t *testing.T) {
	c := newTestClient(t, nil)

	assert.Error(t, c.Register(Endpoint{Fetch: newGate().fetch}))
	assert.Error(t, c.Register(Endpoint{Name: "getOrder"}))
	require.NoError(t, c.Register(Endpoint{Name: "getOrder", Fetch: newGate().fetch}))

	var ve *ValidationError
	assert.ErrorAs(t, c.Register(Endpoint{Name: "getOrder", Fetch: newGate().fetch}), &ve)
}

func TestConcurrentQueriesShareOneRequest(t *testing.T) {
	c := newTestClient(t, nil)
	g := newGate()
	register(t, c, "getAllOrders", g.fetch)
	key := Key("getAllOrders")

	const callers = 16
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Query(context.Background(), key)
		}()
	}

	p := g.next(t)
	// let every caller attach before answering
	assert.Eventually(t, func() bool {
		r, _ := c.Entry(key)
		return r.Status == StatusLoading
	}, waitFor, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	p.answer([]string{"a", "b"}, TagOrders)
	wg.Wait()

	g.none(t)
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"a", "b"}, results[i].Value)
	}
}

func TestQueryFreshIsImmediate(t *testing.T) {
	c := newTestClient(t, nil)
	f := &counter{fn: func(arg string) (any, []Tag, error) { return "avatar-" + arg, []Tag{TagAvatar}, nil }}
	register(t, c, "getAvatars", f.fetch)

	for range 3 {
		r, err := c.Query(context.Background(), Key("getAvatars"))
		require.NoError(t, err)
		assert.Equal(t, "avatar-", r.Value)
	}
	assert.Equal(t, 1, f.calls())
}

func TestQueryStaleReturnsValueWhileRefetching(t *testing.T) {
	c := newTestClient(t, nil)
	g := newGate()
	register(t, c, "getAllOrders", g.fetch)
	key := Key("getAllOrders")
	require.NoError(t, c.Write(key, "v1", TagOrders))

	_, err := c.InvalidateTags(TagOrders)
	require.NoError(t, err)

	r, err := c.Query(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Equal(t, "v1", r.Value)
	assert.True(t, r.Stale)
	assert.True(t, r.Refetching)

	g.next(t).answer("v2", TagOrders)
	assert.Eventually(t, func() bool {
		r, _ := c.Entry(key)
		return r.Value == "v2" && !r.Stale && !r.Refetching
	}, waitFor, 5*time.Millisecond)
}

func TestQueryContextBoundsWaitOnly(t *testing.T) {
	c := newTestClient(t, nil)
	g := newGate()
	register(t, c, "getOrder", g.fetch)
	key := Key("getOrder", "9")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, key)
		done <- err
	}()
	p := g.next(t)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	p.answer("order-9", TagOrder)
	assert.Eventually(t, func() bool {
		r, _ := c.Entry(key)
		return r.Value == "order-9"
	}, waitFor, 5*time.Millisecond)
}

func TestSupersededResponseNeverOverwrites(t *testing.T) {
	for _, newerFirst := range []bool{true, false} {
		name := "older_first"
		if newerFirst {
			name = "newer_first"
		}
		t.Run(name, func(t *testing.T) {
			h := &recordingHooks{}
			c := newTestClient(t, func(o *Options) { o.Hooks = h })
			g := newGate()
			register(t, c, "getOrder", g.fetch)
			key := Key("getOrder", "42")

			s, err := c.Subscribe(key)
			require.NoError(t, err)
			defer s.Close()
			first := g.next(t)

			refetched := make(chan Result, 1)
			go func() {
				r, _ := c.Refetch(context.Background(), key)
				refetched <- r
			}()
			second := g.next(t)

			if newerFirst {
				second.answer("new", TagOrder)
				<-refetched
				first.answer("old", TagOrder)
				assert.Eventually(t, func() bool {
					h.mu.Lock()
					defer h.mu.Unlock()
					return len(h.staleWrites) == 1
				}, waitFor, 5*time.Millisecond)
			} else {
				first.answer("old", TagOrder)
				r := waitUpdate(t, s, func(r Result) bool { return r.HasValue() })
				assert.Equal(t, "old", r.Value)
				assert.True(t, r.Stale, "a response older than the refetch leaves the entry stale")
				second.answer("new", TagOrder)
				<-refetched
			}

			r := waitUpdate(t, s, func(r Result) bool { return !r.Refetching })
			assert.Equal(t, "new", r.Value)
			assert.False(t, r.Stale)
		})
	}
}

func TestFailedRefetchKeepsPreviousValue(t *testing.T) {
	h := &recordingHooks{}
	c := newTestClient(t, func(o *Options) { o.Hooks = h })
	g := newGate()
	register(t, c, "getProducts", g.fetch)
	key := Key("getProducts", "o1")
	require.NoError(t, c.Write(key, []string{"p1"}, TagProducts))

	done := make(chan error, 1)
	go func() {
		_, err := c.Refetch(context.Background(), key)
		done <- err
	}()
	g.next(t).fail(&TransportError{Method: "GET", Path: "/order/products/o1", Status: 502, Message: "bad gateway"})

	err := <-done
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 502, te.Status)

	r, _ := c.Entry(key)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, []string{"p1"}, r.Value)
	assert.ErrorAs(t, r.Err, &te)
	assert.Equal(t, []CacheKey{key}, h.failures)
}

func TestFirstFetchFailureHasNoValue(t *testing.T) {
	c := newTestClient(t, nil)
	boom := errors.New("boom")
	f := &counter{fn: func(string) (any, []Tag, error) { return nil, nil, boom }}
	register(t, c, "getUserDetails", f.fetch)

	r, err := c.Query(context.Background(), Key("getUserDetails"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusError, r.Status)
	assert.False(t, r.HasValue())

	// an errored entry without a value is retried on the next read
	_, err = c.Query(context.Background(), Key("getUserDetails"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, f.calls())
}

func TestFetchRejectsUnknownProvidedTags(t *testing.T) {
	c := newTestClient(t, nil)
	f := &counter{fn: func(string) (any, []Tag, error) { return 1, []Tag{"Invoice"}, nil }}
	register(t, c, "getOrder", f.fetch)

	_, err := c.Query(context.Background(), Key("getOrder", "1"))
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestFetchWaitsForFreshValue(t *testing.T) {
	c := newTestClient(t, nil)
	g := newGate()
	register(t, c, "getAllOrders", g.fetch)
	key := Key("getAllOrders")
	require.NoError(t, c.Write(key, "v1", TagOrders))
	_, err := c.InvalidateTags(TagOrders)
	require.NoError(t, err)

	done := make(chan Result, 1)
	go func() {
		r, _ := c.Fetch(context.Background(), key)
		done <- r
	}()
	g.next(t).answer("v2", TagOrders)
	r := <-done
	assert.Equal(t, "v2", r.Value)
	assert.False(t, r.Stale)
}
