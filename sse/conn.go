// Package sse is the push-transport collaborator: it opens the order
// service's server-sent-events stream, implements adsync.PushConnection
// over it and supervises redials.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"

	"github.com/unkn0wn-root/adsync"
)

// PathPrefix is the stream path; the routing key (a user id) is appended.
const PathPrefix = "/sse/order/update/"

// Dialer opens order-update streams. HTTPClient should share the cookie
// jar of the request transport so the stream is authenticated.
type Dialer struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     adsync.Logger
}

var _ adsync.PushDialer = (*Dialer)(nil)

// Dial connects and checks the response; the stream is read once the
// returned connection is started. ctx bounds the connect only.
func (d *Dialer) Dial(ctx context.Context, routingKey string) (adsync.PushConnection, error) {
	base, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("sse: base URL: %w", err)
	}
	u := base.JoinPath(PathPrefix, routingKey)

	// the stream outlives ctx; Close cancels it
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// ctx may still abort the connect
	stop := context.AfterFunc(ctx, cancel)
	resp, err := d.client().Do(req)
	if !stop() {
		if err == nil {
			resp.Body.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse: unexpected status %d", resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	log := d.Logger
	if log == nil {
		log = adsync.NopLogger{}
	}
	return &Conn{body: resp.Body, cancel: cancel, log: log, url: u.String()}, nil
}

// client drops the overall request timeout, which would cut the stream.
func (d *Dialer) client() *http.Client {
	if d.HTTPClient == nil {
		return &http.Client{}
	}
	hc := *d.HTTPClient
	hc.Timeout = 0
	return &hc
}

// Conn is one open event stream.
type Conn struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	log    adsync.Logger
	url    string

	mu        sync.Mutex
	onOpen    func()
	onMessage func([]byte)
	onError   func(error)
	closed    bool

	startOnce sync.Once
	errOnce   sync.Once
	closeOnce sync.Once
}

var _ adsync.PushConnection = (*Conn)(nil)

func (c *Conn) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *Conn) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *Conn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Start begins reading. Later calls do nothing.
func (c *Conn) Start() {
	c.startOnce.Do(func() { go c.read() })
}

// Close stops the stream. onError is not called for a closed connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		err = c.body.Close()
	})
	return err
}

func (c *Conn) read() {
	c.mu.Lock()
	open := c.onOpen
	c.mu.Unlock()
	c.log.Debug("sse stream open", adsync.Fields{"url": c.url})
	if open != nil {
		open()
	}

	fr := newFrameReader(c.body)
	for {
		f, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.fail(fmt.Errorf("sse: stream ended: %w", err))
			return
		}
		if f.Event != "" && f.Event != "message" {
			c.log.Debug("sse event skipped", adsync.Fields{"event": f.Event})
			continue
		}
		c.mu.Lock()
		msg, closed := c.onMessage, c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if msg != nil {
			msg(f.Data)
		}
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	fn, closed := c.onError, c.closed
	c.mu.Unlock()
	if closed || fn == nil {
		return
	}
	c.errOnce.Do(func() { fn(err) })
}
