package adsync

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the resource behind one key. arg is the key's Arg. The
// returned tags are the ones this particular result provides.
type FetchFunc func(ctx context.Context, t Transport, arg string) (value any, tags []Tag, err error)

// Endpoint is a named query.
type Endpoint struct {
	Name  string
	Fetch FetchFunc
}

// Register adds a query endpoint. Names are unique per client.
func (c *Client) Register(ep Endpoint) error {
	if ep.Name == "" {
		return invalid("endpoint", "name is required")
	}
	if ep.Fetch == nil {
		return invalid("endpoint", fmt.Sprintf("%s: fetch is required", ep.Name))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.endpoints[ep.Name]; dup {
		return invalid("endpoint", fmt.Sprintf("%s: already registered", ep.Name))
	}
	c.endpoints[ep.Name] = ep
	return nil
}

// Query is the canonical read. A fresh entry is returned immediately. A
// stale entry with a value is returned as is while a background refetch
// runs (Refetching is set). Otherwise Query waits for the single in-flight
// request for key, starting it if needed. ctx bounds the wait only; the
// request itself keeps running.
func (c *Client) Query(ctx context.Context, key CacheKey) (Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{Key: key}, ErrClosed
	}
	ep, err := c.endpoint(key)
	if err != nil {
		c.mu.Unlock()
		return Result{Key: key}, err
	}

	e := c.ensure(key)
	if e.fresh() {
		r := e.result()
		c.mu.Unlock()
		return r, nil
	}
	ch := c.startFetch(e, ep)
	if e.hasValue {
		r := e.result()
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()
	return c.await(ctx, key, ch)
}

// Fetch is Query that always waits for a fresh result when the entry is
// not fresh.
func (c *Client) Fetch(ctx context.Context, key CacheKey) (Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{Key: key}, ErrClosed
	}
	ep, err := c.endpoint(key)
	if err != nil {
		c.mu.Unlock()
		return Result{Key: key}, err
	}

	e := c.ensure(key)
	if e.fresh() {
		r := e.result()
		c.mu.Unlock()
		return r, nil
	}
	ch := c.startFetch(e, ep)
	c.mu.Unlock()
	return c.await(ctx, key, ch)
}

// Refetch marks key stale and waits for a response issued after that.
func (c *Client) Refetch(ctx context.Context, key CacheKey) (Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{Key: key}, ErrClosed
	}
	ep, err := c.endpoint(key)
	if err != nil {
		c.mu.Unlock()
		return Result{Key: key}, err
	}

	e := c.ensure(key)
	c.markStale(e)
	ch := c.startFetch(e, ep)
	c.mu.Unlock()
	return c.await(ctx, key, ch)
}

func (c *Client) endpoint(key CacheKey) (Endpoint, error) {
	ep, ok := c.endpoints[key.Endpoint]
	if !ok {
		return Endpoint{}, &ValidationError{Field: "key", Err: fmt.Errorf("%w: %q", ErrUnknownEndpoint, key.Endpoint)}
	}
	return ep, nil
}

// startFetch joins the request in flight for e or issues a new one when
// nothing is in flight or the in-flight request predates an invalidation.
// Caller holds c.mu; keeping DoChan under the lock guarantees a joiner
// never finds a finished call and reruns it.
func (c *Client) startFetch(e *entry, ep Endpoint) <-chan singleflight.Result {
	if e.inflightGen == 0 || e.inflightGen < e.staleGen {
		e.inflightGen = c.bump(e)
		if !e.hasValue {
			e.status = StatusLoading
		}
		c.log.Debug("fetch issued", Fields{"key": e.key.String(), "gen": e.inflightGen})
		e.notify()
	}
	g := e.inflightGen
	return c.flight.DoChan(flightKey(e.key, g), func() (any, error) {
		return nil, c.run(e.key, ep, g)
	})
}

func flightKey(key CacheKey, g uint64) string {
	return key.String() + "#" + strconv.FormatUint(g, 10)
}

// run performs one request and applies its outcome.
func (c *Client) run(key CacheKey, ep Endpoint, g uint64) error {
	v, tags, err := ep.Fetch(c.ctx, c.transport, key.Arg)
	if err == nil {
		err = validateTags(tags)
	}
	c.complete(key, g, v, tags, err)
	return err
}

// complete applies a finished request at generation g.
func (c *Client) complete(key CacheKey, g uint64, v any, tags []Tag, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	e := c.lookup(key)
	if e == nil {
		c.log.Debug("result discarded; entry evicted", Fields{"key": key.String(), "gen": g})
		return
	}
	if e.inflightGen == g {
		e.inflightGen = 0
	}

	if err != nil {
		if g <= e.writtenGen || e.inflightGen > g {
			c.log.Debug("superseded fetch failed", Fields{"key": key.String(), "gen": g, "err": err})
			e.notify()
			return
		}
		e.status, e.err = StatusError, err
		c.log.Warn("fetch failed", Fields{"key": key.String(), "gen": g, "err": err})
		c.hooks.FetchFailed(key, err)
		e.notify()
		return
	}

	if g <= e.writtenGen {
		c.log.Debug("stale write dropped", Fields{"key": key.String(), "gen": g, "written": e.writtenGen})
		c.hooks.StaleWriteDropped(key, g, e.writtenGen)
		e.notify()
		return
	}
	c.store(e, g, v, tags)
}

// markStale flags e for revalidation; subscribed entries refetch now.
// Caller holds c.mu.
func (c *Client) markStale(e *entry) {
	e.stale = true
	e.staleGen = c.bump(e)
	e.notify()
	if e.subscribers > 0 {
		if ep, ok := c.endpoints[e.key.Endpoint]; ok {
			c.startFetch(e, ep)
		}
	}
}

// await waits for a request started by startFetch and returns the entry
// as it stands afterwards.
func (c *Client) await(ctx context.Context, key CacheKey, ch <-chan singleflight.Result) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{Key: key}, ctx.Err()
	case res := <-ch:
		r, _ := c.Entry(key)
		if res.Err != nil {
			return r, res.Err
		}
		return r, nil
	}
}
