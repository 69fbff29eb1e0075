package adsync

import "sync"

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type entry struct {
	key      CacheKey
	status   Status
	value    any
	hasValue bool
	err      error

	subscribers int
	watchers    map[*Subscription]struct{}

	// stale is set by invalidation and cleared once a response issued after
	// staleGen is written.
	stale       bool
	writtenGen  uint64
	staleGen    uint64
	inflightGen uint64 // 0 => nothing in flight
}

func newEntry(key CacheKey) *entry {
	return &entry{key: key, watchers: make(map[*Subscription]struct{})}
}

func (e *entry) fresh() bool { return e.hasValue && !e.stale }

func (e *entry) maxGen() uint64 {
	return max(e.writtenGen, e.staleGen, e.inflightGen)
}

func (e *entry) result() Result {
	return Result{
		Key:        e.key,
		Status:     e.status,
		Value:      e.value,
		Err:        e.err,
		Stale:      e.stale,
		Refetching: e.inflightGen != 0 && e.hasValue,
		hasValue:   e.hasValue,
	}
}

// notify signals every watcher. Sends never block; a pending signal already
// covers the change.
func (e *entry) notify() {
	for s := range e.watchers {
		select {
		case s.updates <- struct{}{}:
		default:
		}
	}
}

// Result is a snapshot of one entry. While a stale value is revalidated,
// Status stays StatusSuccess and Refetching is set. After a failed fetch
// Status is StatusError, Err holds the failure and Value the last good value.
type Result struct {
	Key        CacheKey
	Status     Status
	Value      any
	Err        error
	Stale      bool
	Refetching bool

	hasValue bool
}

// HasValue reports whether Value holds a fetched or written snapshot.
func (r Result) HasValue() bool { return r.hasValue }

// Subscription is a registered interest in one key. Close it when done.
type Subscription struct {
	c       *Client
	key     CacheKey
	updates chan struct{}

	once      sync.Once
	updatesMu sync.Once
}

func (s *Subscription) Key() CacheKey { return s.key }

// Updates signals after every change to the entry. Signals coalesce; read
// Result after receiving. The channel is closed when the client closes.
func (s *Subscription) Updates() <-chan struct{} { return s.updates }

// Result returns the current snapshot of the subscribed entry.
func (s *Subscription) Result() Result {
	r, _ := s.c.Entry(s.key)
	return r
}

// Close unsubscribes. When the last subscriber leaves, the entry is parked
// and evicted after the idle timeout unless someone subscribes again.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.c
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		e := c.active[s.key]
		if e == nil {
			return
		}
		delete(e.watchers, s)
		e.subscribers--
		if e.subscribers == 0 {
			delete(c.active, s.key)
			c.idle.Set(s.key, e)
			c.log.Debug("entry parked", Fields{"key": s.key.String()})
		}
	})
}

func (s *Subscription) closeUpdates() {
	s.updatesMu.Do(func() { close(s.updates) })
}

// Subscribe registers interest in key. A fetch starts when the entry is
// absent, stale, or has never succeeded; the returned Subscription reports
// its progress through Updates.
func (c *Client) Subscribe(key CacheKey) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	ep, err := c.endpoint(key)
	if err != nil {
		return nil, err
	}

	e := c.activate(key)
	e.subscribers++
	s := &Subscription{c: c, key: key, updates: make(chan struct{}, 1)}
	e.watchers[s] = struct{}{}
	if !e.fresh() {
		c.startFetch(e, ep)
	}
	return s, nil
}

// Write installs value for key, replaces the key's tags and notifies
// subscribers before returning. The entry is created if absent. Any request
// issued before the write can no longer overwrite it.
func (c *Client) Write(key CacheKey, value any, tags ...Tag) error {
	if err := validateTags(tags); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	e := c.ensure(key)
	c.store(e, c.bump(e), value, tags)
	return nil
}

// Patch replaces key's value with update(value). Tags are left alone. It
// reports false, without calling update, when the key is absent or holds
// no value. update must not mutate its argument in place.
func (c *Client) Patch(key CacheKey, update func(any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	e := c.lookup(key)
	if e == nil || !e.hasValue {
		return false
	}
	e.value = update(e.value)
	e.notify()
	return true
}

// Entry returns the current snapshot for key.
func (c *Client) Entry(key CacheKey) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Result{Key: key}, false
	}
	e := c.lookup(key)
	if e == nil {
		return Result{Key: key}, false
	}
	return e.result(), true
}

// store writes a successful value at generation g. Caller holds c.mu and
// has checked g against writtenGen.
func (c *Client) store(e *entry, g uint64, value any, tags []Tag) {
	e.value, e.hasValue = value, true
	e.status, e.err = StatusSuccess, nil
	e.writtenGen = g
	e.stale = g < e.staleGen
	c.tags.index(e.key, tags)
	e.notify()
}

// lookup finds an active or parked entry. Caller holds c.mu.
func (c *Client) lookup(key CacheKey) *entry {
	if e, ok := c.active[key]; ok {
		return e
	}
	if e, ok := c.idle.GetIfPresent(key); ok {
		return e
	}
	return nil
}

// ensure returns the entry for key, parking a new one if absent.
func (c *Client) ensure(key CacheKey) *entry {
	if e := c.lookup(key); e != nil {
		return e
	}
	e := newEntry(key)
	c.idle.Set(key, e)
	return e
}

// activate moves key's entry into the active set, creating it if needed.
func (c *Client) activate(key CacheKey) *entry {
	if e, ok := c.active[key]; ok {
		return e
	}
	e, ok := c.idle.GetIfPresent(key)
	if ok {
		c.idle.Invalidate(key)
	} else {
		e = newEntry(key)
	}
	c.active[key] = e
	return e
}
