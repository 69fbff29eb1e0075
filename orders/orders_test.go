package orders

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/adsync"
	"github.com/unkn0wn-root/adsync/codec"
)

type route func(req *adsync.Request) (*adsync.Response, error)

// fakeServer answers requests by "METHOD path" and records them.
type fakeServer struct {
	mu     sync.Mutex
	routes map[string]route
	seen   []*adsync.Request
}

func newFakeServer() *fakeServer { return &fakeServer{routes: make(map[string]route)} }

func (s *fakeServer) handle(method, path string, r route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = r
}

func (s *fakeServer) json(method, path, body string) {
	s.handle(method, path, func(*adsync.Request) (*adsync.Response, error) {
		return jsonResponse(body), nil
	})
}

func (s *fakeServer) Do(_ context.Context, req *adsync.Request) (*adsync.Response, error) {
	s.mu.Lock()
	s.seen = append(s.seen, req)
	r, ok := s.routes[req.Method+" "+req.Path]
	s.mu.Unlock()
	if !ok {
		return nil, &adsync.TransportError{Method: req.Method, Path: req.Path, Status: http.StatusNotFound}
	}
	return r(req)
}

func (s *fakeServer) count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.seen {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func jsonResponse(body string) *adsync.Response {
	return &adsync.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(body),
	}
}

func newClient(t *testing.T, srv *fakeServer) *adsync.Client {
	t.Helper()
	c, err := adsync.New(adsync.Options{Transport: srv})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	require.NoError(t, Register(c))
	return c
}

const threeOrders = `{"data":[
	{"_id":"41","productName":"Mug","orderStatus":"completed"},
	{"_id":"42","productName":"Sneakers","orderStatus":"processing"},
	{"_id":"43","productName":"Lamp","orderStatus":"pending"}
],"message":"ok"}`

func TestQueriesDecodeEnvelope(t *testing.T) {
	srv := newFakeServer()
	srv.json(http.MethodGet, "/order/all", threeOrders)
	srv.json(http.MethodGet, "/order/single/42", `{"data":{"_id":"42","orderStatus":"processing","scriptLength":250}}`)
	srv.json(http.MethodGet, "/order/voices", `{"data":[{"_id":"v1","language":"English"},{"_id":"v2","language":"Hindi"}]}`)
	c := newClient(t, srv)
	ctx := context.Background()

	r, err := c.Query(ctx, AllOrdersKey())
	require.NoError(t, err)
	list := AllOrders(r)
	require.Len(t, list, 3)
	assert.Equal(t, StatusProcessing, list[1].Status)

	r, err = c.Query(ctx, OrderKey("42"))
	require.NoError(t, err)
	assert.Equal(t, 250, OrderOf(r).ScriptLength)

	r, err = c.Query(ctx, VoicesKey())
	require.NoError(t, err)
	assert.Equal(t, []Voice{{ID: "v2", Language: "Hindi"}}, VoicesForLanguage(Voices(r), "hindi"))

	// provided tags come from the endpoint
	keys, err := c.InvalidateTags(adsync.TagOrders)
	require.NoError(t, err)
	assert.Equal(t, []adsync.CacheKey{AllOrdersKey()}, keys)
}

func TestQueriesDecodeCBOR(t *testing.T) {
	body, err := cbor.Marshal(map[string]any{
		"data": []map[string]any{{"_id": "a1", "avatar_name": "Ava", "gender": "female"}},
	})
	require.NoError(t, err)

	srv := newFakeServer()
	srv.handle(http.MethodGet, "/order/avatars", func(*adsync.Request) (*adsync.Response, error) {
		return &adsync.Response{Status: 200, Header: http.Header{"Content-Type": []string{"application/cbor"}}, Body: body}, nil
	})
	c := newClient(t, srv)

	r, err := c.Query(context.Background(), AvatarsKey())
	require.NoError(t, err)
	assert.Equal(t, []Avatar{{ID: "a1", Name: "Ava", Gender: "female"}}, Avatars(r))
}

func TestQueriesDecodeProtobuf(t *testing.T) {
	body, err := codec.ProtoStruct[map[string]any]{}.Encode(map[string]any{
		"data": map[string]any{"_id": "42", "orderStatus": "completed", "scriptLength": 250},
	})
	require.NoError(t, err)

	srv := newFakeServer()
	srv.handle(http.MethodGet, "/order/single/42", func(*adsync.Request) (*adsync.Response, error) {
		return &adsync.Response{Status: 200, Header: http.Header{"Content-Type": []string{codec.MediaProtobuf}}, Body: body}, nil
	})
	c := newClient(t, srv)

	r, err := c.Query(context.Background(), OrderKey("42"))
	require.NoError(t, err)
	o := OrderOf(r)
	require.NotNil(t, o)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, 250, o.ScriptLength)
}

func TestProductsRequireOrderID(t *testing.T) {
	c := newClient(t, newFakeServer())

	_, err := c.Query(context.Background(), ProductsKey(""))
	var ve *adsync.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestOrderUpdatePushScenario(t *testing.T) {
	srv := newFakeServer()
	srv.json(http.MethodGet, "/order/all", threeOrders)
	srv.json(http.MethodGet, "/order/single/42", `{"data":{"_id":"42","orderStatus":"processing"}}`)
	c := newClient(t, srv)
	ctx := context.Background()

	r, err := c.Query(ctx, AllOrdersKey())
	require.NoError(t, err)
	before := AllOrders(r)
	_, err = c.Query(ctx, OrderKey("42"))
	require.NoError(t, err)

	sub, err := c.Subscribe(AllOrdersKey())
	require.NoError(t, err)
	defer sub.Close()

	rec := c.NewReconciler(nil)
	RegisterPush(rec)
	lease, err := rec.Acquire(ctx, "user-1")
	require.NoError(t, err)
	defer lease.Release()
	conn := &pushConn{}
	require.NoError(t, rec.Attach(conn))
	conn.onOpen()

	conn.onMessage([]byte(`{"eventType":"orderUpdate","order":{"_id":"42","productName":"Sneakers","orderStatus":"completed","video_url":"https://cdn/v.mp4"}}`))

	after := AllOrders(sub.Result())
	require.Len(t, after, 3)
	assert.Equal(t, StatusCompleted, after[1].Status)
	assert.Equal(t, "https://cdn/v.mp4", after[1].VideoURL)
	assert.Same(t, before[0], after[0])
	assert.Same(t, before[2], after[2])
	assert.Equal(t, StatusProcessing, before[1].Status, "the previous snapshot is not mutated")

	single, _ := c.Entry(OrderKey("42"))
	assert.Equal(t, StatusCompleted, OrderOf(single).Status)

	// no round trip
	assert.Equal(t, 1, srv.count(http.MethodGet, "/order/all"))
	assert.Equal(t, 1, srv.count(http.MethodGet, "/order/single/42"))
}

func TestOrderUpdateAppendsUnknownOrder(t *testing.T) {
	c := newClient(t, newFakeServer())
	o41 := &Order{ID: "41"}
	require.NoError(t, c.Write(AllOrdersKey(), []*Order{o41}, adsync.TagOrders))

	err := HandleOrderUpdate(context.Background(), c, adsync.PushEvent{
		Type: EventOrderUpdate,
		Raw:  []byte(`{"eventType":"orderUpdate","order":{"_id":"99","orderStatus":"pending"}}`),
	})
	require.NoError(t, err)

	r, _ := c.Entry(AllOrdersKey())
	list := AllOrders(r)
	require.Len(t, list, 2)
	assert.Same(t, o41, list[0])
	assert.Equal(t, "99", list[1].ID)

	_, ok := c.Entry(OrderKey("99"))
	assert.False(t, ok, "uncached single orders are not created")
}

func TestOrderUpdateRejectsMalformed(t *testing.T) {
	c := newClient(t, newFakeServer())

	for _, raw := range []string{`{"eventType":"orderUpdate"}`, `{"eventType":"orderUpdate","order":{"orderStatus":"x"}}`, `{`} {
		err := HandleOrderUpdate(context.Background(), c, adsync.PushEvent{Type: EventOrderUpdate, Raw: []byte(raw)})
		var perr *adsync.PushParseError
		assert.ErrorAs(t, err, &perr, raw)
	}
}

type pushConn struct {
	onOpen    func()
	onMessage func([]byte)
}

func (p *pushConn) OnOpen(fn func())          { p.onOpen = fn }
func (p *pushConn) OnMessage(fn func([]byte)) { p.onMessage = fn }
func (p *pushConn) OnError(func(error))       {}
func (p *pushConn) Start()                    {}
func (p *pushConn) Close() error              { return nil }
