package adsync

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/adsync/codec"
)

// ConnState is the state of the push connection.
//
//	Closed -> Connecting -> Open -> (Closed | Reconnecting)
//	Reconnecting -> Connecting (a new connection is attached)
type ConnState int

const (
	ConnClosed ConnState = iota
	ConnConnecting
	ConnOpen
	ConnReconnecting
)

func (s ConnState) String() string {
	switch s {
	case ConnClosed:
		return "closed"
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// PushConnection is one server-to-client event stream. Callbacks are
// registered before Start; the connection must not invoke them before.
type PushConnection interface {
	OnOpen(func())
	OnMessage(func(data []byte))
	OnError(func(err error))
	Start()
	Close() error
}

// PushDialer opens a connection for a routing key (an account id).
type PushDialer interface {
	Dial(ctx context.Context, routingKey string) (PushConnection, error)
}

// PushEvent is a parsed push message. Raw is the whole message so handlers
// can decode their own payload.
type PushEvent struct {
	Type string
	Raw  []byte
}

// EventHandler applies one push event to the cache. Returning a
// *PushParseError marks the event malformed.
type EventHandler func(ctx context.Context, c *Client, ev PushEvent) error

type pushEnvelope struct {
	EventType string `json:"eventType"`
}

// Reconciler routes push events into a Client and tracks the connection
// state. It never redials on its own: the collaborator owning the transport
// watches State and hands new connections to Attach.
type Reconciler struct {
	c      *Client
	dialer PushDialer
	log    Logger
	hooks  Hooks

	mu         sync.Mutex
	closed     bool
	state      ConnState
	routingKey string
	leases     map[string]struct{}
	conn       PushConnection
	epoch      uint64 // bumped per attached connection and on shutdown
	handlers   map[string]EventHandler
	watchers   map[chan struct{}]struct{}
}

// NewReconciler builds a Reconciler feeding c. With a nil dialer the
// reconciler only receives connections through Attach.
func (c *Client) NewReconciler(d PushDialer) *Reconciler {
	return &Reconciler{
		c:        c,
		dialer:   d,
		log:      c.log,
		hooks:    c.hooks,
		leases:   make(map[string]struct{}),
		handlers: make(map[string]EventHandler),
		watchers: make(map[chan struct{}]struct{}),
	}
}

// Handle registers h for eventType, replacing any previous handler.
func (r *Reconciler) Handle(eventType string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

// Lease is a scoped hold on the push connection.
type Lease struct {
	r    *Reconciler
	id   string
	once sync.Once
}

func (l *Lease) ID() string { return l.id }

// Release gives the lease back. The connection closes when the last lease
// is released. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() { l.r.release(l.id) })
}

// Acquire takes a lease on the connection for routingKey. The first lease
// dials. Dial failures do not fail the lease: they move the state to
// Reconnecting for the redial collaborator to act on. All leases must share
// one routing key.
func (r *Reconciler) Acquire(ctx context.Context, routingKey string) (*Lease, error) {
	if routingKey == "" {
		return nil, invalid("routingKey", "must not be empty")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if len(r.leases) > 0 && routingKey != r.routingKey {
		r.mu.Unlock()
		return nil, invalid("routingKey", "connection already open for another routing key")
	}
	l := &Lease{r: r, id: uuid.NewString()}
	r.leases[l.id] = struct{}{}
	if len(r.leases) > 1 {
		r.mu.Unlock()
		return l, nil
	}

	r.routingKey = routingKey
	r.setState(ConnConnecting)
	epoch := r.epoch
	r.mu.Unlock()

	if r.dialer == nil {
		return l, nil
	}
	conn, err := r.dialer.Dial(ctx, routingKey)
	if err != nil {
		r.mu.Lock()
		if r.epoch == epoch && len(r.leases) > 0 {
			r.connFailed(err)
		}
		r.mu.Unlock()
		return l, nil
	}

	r.mu.Lock()
	current := r.epoch == epoch && len(r.leases) > 0
	r.mu.Unlock()
	if !current {
		// released or attached elsewhere while dialing
		_ = conn.Close()
		return l, nil
	}
	if err := r.Attach(conn); err != nil {
		_ = conn.Close()
	}
	return l, nil
}

func (r *Reconciler) release(id string) {
	r.mu.Lock()
	if _, ok := r.leases[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.leases, id)
	if len(r.leases) > 0 {
		r.mu.Unlock()
		return
	}
	conn := r.shutdown()
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Attach installs conn as the current connection, closing the previous one.
// Callbacks from earlier connections are ignored from here on.
func (r *Reconciler) Attach(conn PushConnection) error {
	if conn == nil {
		return invalid("conn", "must not be nil")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if len(r.leases) == 0 {
		r.mu.Unlock()
		return invalid("conn", "no lease is held")
	}
	old := r.conn
	r.epoch++
	epoch := r.epoch
	r.conn = conn
	r.setState(ConnConnecting)
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	conn.OnOpen(func() { r.opened(epoch) })
	conn.OnMessage(func(data []byte) { r.dispatch(epoch, data) })
	conn.OnError(func(err error) { r.failed(epoch, err) })
	conn.Start()
	return nil
}

func (r *Reconciler) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RoutingKey returns the routing key of the held connection, or "".
func (r *Reconciler) RoutingKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routingKey
}

// Watch signals on every state change. Call stop when done.
func (r *Reconciler) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, ch)
			r.mu.Unlock()
		})
	}
}

// Close drops every lease and closes the connection. Safe to call more
// than once.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	clear(r.leases)
	conn := r.shutdown()
	r.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// shutdown detaches the connection and returns it for closing outside the
// lock. Caller holds r.mu.
func (r *Reconciler) shutdown() PushConnection {
	conn := r.conn
	r.conn = nil
	r.epoch++
	r.routingKey = ""
	r.setState(ConnClosed)
	return conn
}

func (r *Reconciler) opened(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		return
	}
	r.setState(ConnOpen)
}

func (r *Reconciler) failed(epoch uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		return
	}
	r.connFailed(err)
}

// connFailed records a stream failure. Caller holds r.mu.
func (r *Reconciler) connFailed(err error) {
	perr := &PushConnectionError{RoutingKey: r.routingKey, Err: err}
	r.log.Warn("push connection failed", Fields{"err": perr})
	r.setState(ConnReconnecting)
}

func (r *Reconciler) dispatch(epoch uint64, data []byte) {
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		return
	}
	env, err := codec.JSON[pushEnvelope]{}.Decode(data)
	if err == nil && env.EventType == "" {
		err = errors.New("missing eventType")
	}
	var h EventHandler
	if err == nil {
		h = r.handlers[env.EventType]
	}
	r.mu.Unlock()

	if err != nil {
		r.drop(env.EventType, "malformed", &PushParseError{Err: err})
		return
	}
	if h == nil {
		r.drop(env.EventType, "unknown_type", nil)
		return
	}
	if err := h(r.c.ctx, r.c, PushEvent{Type: env.EventType, Raw: data}); err != nil {
		var perr *PushParseError
		if errors.As(err, &perr) {
			r.drop(env.EventType, "malformed", err)
			return
		}
		r.drop(env.EventType, "handler_error", err)
	}
}

func (r *Reconciler) drop(eventType, reason string, err error) {
	f := Fields{"event": eventType, "reason": reason}
	if err != nil {
		f["err"] = err
	}
	r.log.Warn("push event dropped", f)
	r.hooks.PushEventDropped(eventType, reason)
}

// setState moves to s and signals watchers. Caller holds r.mu.
func (r *Reconciler) setState(s ConnState) {
	if r.state == s {
		return
	}
	from := r.state
	r.state = s
	r.log.Debug("push state changed", Fields{"from": from.String(), "to": s.String()})
	r.hooks.PushStateChanged(from, s)
	for ch := range r.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
