// Package httptransport implements adsync.Transport over net/http for the
// order service: cookie-authenticated sessions, JSON or multipart request
// bodies, typed errors and ETag revalidation backed by a provider.Provider.
package httptransport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/unkn0wn-root/adsync"
	"github.com/unkn0wn-root/adsync/codec"
	"github.com/unkn0wn-root/adsync/internal/wire"
	"github.com/unkn0wn-root/adsync/provider"
)

const (
	defaultValidatorTTL = 10 * time.Minute
	defaultMaxBody      = 32 << 20
	defaultTimeout      = 30 * time.Second

	HeaderRequestID = "X-Request-Id"
)

var acceptHeader = codec.MediaJSON + ", " + codec.MediaCBOR + ";q=0.9, " +
	codec.MediaMsgpack + ";q=0.8, " + codec.MediaProtobuf + ";q=0.7"

type Options struct {
	// Required
	BaseURL string

	HTTPClient   *http.Client      // nil => cookie jar, otelhttp transport, 30s timeout
	Validators   provider.Provider // nil => no ETag revalidation
	ValidatorTTL time.Duration     // 0 => 10m
	MaxBody      int64             // response size limit; 0 => 32MiB
	Logger       adsync.Logger     // nil => NopLogger
}

type Transport struct {
	base       *url.URL
	hc         *http.Client
	validators provider.Provider
	ttl        time.Duration
	maxBody    int64
	log        adsync.Logger
}

var _ adsync.Transport = (*Transport)(nil)

func New(opts Options) (*Transport, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("httptransport: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httptransport: invalid base URL %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc, err = NewHTTPClient()
		if err != nil {
			return nil, err
		}
	}

	t := &Transport{
		base:       base,
		hc:         hc,
		validators: opts.Validators,
		ttl:        opts.ValidatorTTL,
		maxBody:    opts.MaxBody,
		log:        opts.Logger,
	}
	if t.ttl <= 0 {
		t.ttl = defaultValidatorTTL
	}
	if t.maxBody <= 0 {
		t.maxBody = defaultMaxBody
	}
	if t.log == nil {
		t.log = adsync.NopLogger{}
	}
	return t, nil
}

// NewHTTPClient returns a client that keeps the session cookie between
// requests and records OpenTelemetry spans and metrics per request.
func NewHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Jar:       jar,
		Timeout:   defaultTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, nil
}

// HTTPClient returns the underlying client; the SSE dialer shares it so the
// stream carries the session cookie.
func (t *Transport) HTTPClient() *http.Client { return t.hc }

func (t *Transport) BaseURL() string { return t.base.String() }

func (t *Transport) Do(ctx context.Context, req *adsync.Request) (*adsync.Response, error) {
	if req == nil || req.Method == "" || req.Path == "" {
		return nil, &adsync.ValidationError{Field: "request", Err: errors.New("method and path are required")}
	}
	fail := func(status int, msg string, err error) error {
		return &adsync.TransportError{Method: req.Method, Path: req.Path, Status: status, Message: msg, Err: err}
	}

	u := t.base.JoinPath(req.Path)
	u.RawQuery = req.Query.Encode()

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, fail(0, "", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fail(0, "", err)
	}
	reqID := uuid.NewString()
	hreq.Header.Set(HeaderRequestID, reqID)
	hreq.Header.Set("Accept", acceptHeader)
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}

	cacheKey := req.Method + " " + u.String()
	cached, hasCached := t.validator(ctx, req, cacheKey)
	if hasCached {
		hreq.Header.Set("If-None-Match", cached.ETag)
	}

	resp, err := t.hc.Do(hreq)
	if err != nil {
		t.log.Debug("request failed", adsync.Fields{"method": req.Method, "path": req.Path, "request_id": reqID, "err": err})
		return nil, fail(0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fail(resp.StatusCode, "", err)
	}
	if int64(len(raw)) > t.maxBody {
		return nil, fail(resp.StatusCode, "response too large", nil)
	}
	t.log.Debug("request done", adsync.Fields{"method": req.Method, "path": req.Path, "status": resp.StatusCode, "request_id": reqID})

	if resp.StatusCode == http.StatusNotModified && hasCached {
		h := resp.Header.Clone()
		h.Set("Content-Type", cached.ContentType)
		return &adsync.Response{Status: http.StatusOK, Header: h, Body: cached.Body}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, messageOf(resp.Header.Get("Content-Type"), raw), nil)
	}

	if etag := resp.Header.Get("ETag"); etag != "" && req.Method == http.MethodGet {
		t.remember(ctx, cacheKey, wire.Validator{ETag: etag, ContentType: resp.Header.Get("Content-Type"), Body: raw})
	}
	return &adsync.Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

func (t *Transport) validator(ctx context.Context, req *adsync.Request, key string) (wire.Validator, bool) {
	if t.validators == nil || req.Method != http.MethodGet {
		return wire.Validator{}, false
	}
	b, ok, err := t.validators.Get(ctx, key)
	if err != nil || !ok {
		return wire.Validator{}, false
	}
	v, err := wire.Decode(b)
	if err != nil {
		_ = t.validators.Del(ctx, key) // self-heal corrupt
		return wire.Validator{}, false
	}
	return v, true
}

func (t *Transport) remember(ctx context.Context, key string, v wire.Validator) {
	if t.validators == nil {
		return
	}
	b, err := wire.Encode(v)
	if err != nil {
		return
	}
	ok, err := t.validators.Set(ctx, key, b, int64(len(b)), t.ttl)
	if err != nil || !ok {
		t.log.Debug("validator not stored", adsync.Fields{"key": key, "err": err})
	}
}

func encodeBody(req *adsync.Request) (io.Reader, string, error) {
	switch {
	case req.Form != nil:
		return encodeForm(req.Form)
	case req.Body != nil:
		b, err := codec.JSON[any]{}.Encode(req.Body)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), codec.MediaJSON, nil
	default:
		return nil, "", nil
	}
}

func encodeForm(f *adsync.Form) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	names := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := mw.WriteField(k, f.Fields[k]); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Name))
		ct := file.MIMEType
		if ct == "" {
			ct = http.DetectContentType(file.Content)
		}
		h.Set("Content-Type", ct)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := w.Write(file.Content); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// messageOf extracts the server's message from an error response.
func messageOf(contentType string, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	b, err := codec.ForContentType[errorBody](contentType).Decode(raw)
	if err != nil {
		return ""
	}
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}
