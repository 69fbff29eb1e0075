package adsync

import (
	"context"
	"errors"
	"sync"
)

// Mutation is a single write against the server.
type Mutation struct {
	Name        string
	Invalidates []Tag

	// Validate rejects bad input before any request is issued. Optional.
	Validate func() error

	// Do issues the write. It runs at most once per Mutate call.
	Do func(ctx context.Context, t Transport) (any, error)
}

// Mutate runs m exactly once. On success every key that provides one of
// m.Invalidates is marked stale; subscribed keys refetch in the
// background, others on their next read. On failure nothing is
// invalidated and the error is returned as is.
func (c *Client) Mutate(ctx context.Context, m Mutation) (any, error) {
	if err := c.checkMutation(m); err != nil {
		return nil, err
	}
	out, err := m.Do(ctx, c.transport)
	if err != nil {
		c.log.Debug("mutation failed", Fields{"mutation": m.Name, "err": err})
		return nil, err
	}
	keys, err := c.InvalidateTags(m.Invalidates...)
	if err != nil {
		return out, err
	}
	c.log.Debug("mutation applied", Fields{"mutation": m.Name, "invalidated": len(keys)})
	return out, nil
}

func (c *Client) checkMutation(m Mutation) error {
	if c.isClosed() {
		return ErrClosed
	}
	if m.Do == nil {
		return invalid("mutation", m.Name+": do is required")
	}
	if err := validateTags(m.Invalidates); err != nil {
		return err
	}
	if m.Validate == nil {
		return nil
	}
	if err := m.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return err
		}
		return &ValidationError{Err: err}
	}
	return nil
}

// InvalidateTags marks every cached key that provides one of tags stale
// and returns those keys in no particular order. Keys whose entries expired
// but were not yet swept are dropped from the index here.
func (c *Client) InvalidateTags(tags ...Tag) ([]CacheKey, error) {
	if err := validateTags(tags); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	keys := c.tags.invalidate(tags)
	out := keys[:0]
	for _, k := range keys {
		e := c.lookup(k)
		if e == nil {
			c.tags.forget(k)
			continue
		}
		c.markStale(e)
		out = append(out, k)
	}
	return out, nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// OptimisticState tracks an optimistic update.
type OptimisticState int

const (
	OptimisticPending OptimisticState = iota
	OptimisticCommitted
	OptimisticRolledBack
)

func (s OptimisticState) String() string {
	switch s {
	case OptimisticPending:
		return "pending"
	case OptimisticCommitted:
		return "committed"
	case OptimisticRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// OptimisticPatch speculatively rewrites one cached value.
type OptimisticPatch struct {
	Key    CacheKey
	Update func(any) any
}

// undo is a value to restore, valid only while e still holds the write
// it was taken from.
type undo struct {
	e     *entry
	gen   uint64
	value any
}

// OptimisticUpdate holds speculative patches until the mutation they
// anticipate settles.
type OptimisticUpdate struct {
	c *Client

	mu    sync.Mutex
	state OptimisticState
	ran   bool
	undo  []undo
}

// Optimistic applies patches now and returns the update in the Pending
// state. Patches for keys without a value are skipped.
func (c *Client) Optimistic(patches ...OptimisticPatch) *OptimisticUpdate {
	u := &OptimisticUpdate{c: c}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return u
	}
	for _, p := range patches {
		e := c.lookup(p.Key)
		if e == nil || !e.hasValue || p.Update == nil {
			continue
		}
		u.undo = append(u.undo, undo{e: e, gen: e.writtenGen, value: e.value})
		e.value = p.Update(e.value)
		e.notify()
	}
	return u
}

// Run executes m. Success commits the patches and invalidates m's tags;
// failure restores every patched value that was not rewritten meanwhile
// and returns the error. Run may be called once.
func (u *OptimisticUpdate) Run(ctx context.Context, m Mutation) (any, error) {
	u.mu.Lock()
	if u.ran {
		u.mu.Unlock()
		return nil, &ValidationError{Field: "optimistic", Err: ErrAlreadyRun}
	}
	u.ran = true
	u.mu.Unlock()

	out, err := u.c.Mutate(ctx, m)

	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.rollback()
		u.state = OptimisticRolledBack
		return nil, err
	}
	u.state = OptimisticCommitted
	return out, nil
}

func (u *OptimisticUpdate) State() OptimisticState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// rollback restores previous values newest first. A value written after
// the patch (a fetch or Write) is newer than the saved one and is kept.
// Caller holds u.mu.
func (u *OptimisticUpdate) rollback() {
	c := u.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	restored := 0
	for i := len(u.undo) - 1; i >= 0; i-- {
		r := u.undo[i]
		if c.lookup(r.e.key) != r.e || r.e.writtenGen != r.gen {
			c.log.Debug("rollback skipped; entry rewritten", Fields{"key": r.e.key.String(), "gen": r.gen, "written": r.e.writtenGen})
			continue
		}
		r.e.value, r.e.hasValue = r.value, true
		r.e.notify()
		restored++
	}
	c.log.Debug("optimistic update rolled back", Fields{"patches": len(u.undo), "restored": restored})
}
