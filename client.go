package adsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/maypok86/otter/v2"
	"golang.org/x/sync/singleflight"

	gen "github.com/unkn0wn-root/adsync/genstore"
)

// Client owns the resource cache, tag index, query engine and mutation
// executor. Callers thread one Client through their code; there is no
// package-level instance.
type Client struct {
	transport Transport
	log       Logger
	hooks     Hooks
	gens      gen.GenStore
	ownGens   bool

	// ctx bounds requests; callers' contexts only bound their waits.
	ctx    context.Context
	cancel context.CancelFunc

	flight singleflight.Group

	mu        sync.Mutex
	closed    bool
	endpoints map[string]Endpoint
	active    map[CacheKey]*entry // entries with subscribers
	idle      *otter.Cache[CacheKey, *entry]
	tags      *tagIndex
}

func newClient(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("adsync: transport is required")
	}
	if opts.IdleTimeout < 0 {
		return nil, fmt.Errorf("adsync: idle timeout must not be negative")
	}

	c := &Client{
		transport: opts.Transport,
		endpoints: make(map[string]Endpoint),
		active:    make(map[CacheKey]*entry),
		tags:      newTagIndex(),
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.GenStore != nil {
		c.gens = opts.GenStore
	} else {
		c.gens = gen.NewLocalGenStore(
			coalesce(opts.GenSweep, defaultGenSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
		c.ownGens = true
	}

	idle, err := otter.New(&otter.Options[CacheKey, *entry]{
		MaximumSize:      coalesce(opts.MaxIdleEntries, defaultMaxIdleEntries),
		ExpiryCalculator: otter.ExpiryAccessing[CacheKey, *entry](coalesce(opts.IdleTimeout, defaultIdleTimeout)),
		OnDeletion: func(ev otter.DeletionEvent[CacheKey, *entry]) {
			// maintenance may run inside idle calls made under c.mu
			if ev.WasEvicted() {
				go c.evicted(ev.Key)
			}
		},
	})
	if err != nil {
		if c.ownGens {
			_ = c.gens.Close(context.Background())
		}
		return nil, fmt.Errorf("adsync: idle store: %w", err)
	}
	c.idle = idle
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Close cancels in-flight requests and drops every entry. Safe to call more
// than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for k, e := range c.active {
		for s := range e.watchers {
			s.closeUpdates()
		}
		delete(c.active, k)
	}
	c.mu.Unlock()

	c.cancel()
	c.idle.InvalidateAll()
	if c.ownGens {
		return c.gens.Close(ctx)
	}
	return nil
}

// Transport returns the transport the client issues requests with.
func (c *Client) Transport() Transport { return c.transport }

// bump takes the next request generation for e. Caller holds c.mu.
func (c *Client) bump(e *entry) uint64 {
	g, err := c.gens.Bump(c.ctx, e.key.String())
	if err != nil || g <= e.maxGen() {
		// a shared store that lost state must not reissue a generation
		if err != nil {
			c.log.Warn("gen bump failed; using local generation", Fields{"key": e.key.String(), "err": err})
		}
		g = e.maxGen() + 1
	}
	return g
}

// evicted runs after the idle store dropped key because of expiry or size.
func (c *Client) evicted(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	// the key may have been recreated since; only its own write re-indexes it
	if cur := c.lookup(key); cur == nil || !cur.hasValue {
		c.tags.forget(key)
	}
	c.log.Debug("idle entry evicted", Fields{"key": key.String()})
	c.hooks.EntryEvicted(key)
}
