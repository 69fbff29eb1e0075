package adsync

import (
	"context"
	"net/http"
	"net/url"
)

// Transport issues requests against the order service. Implementations report
// failures as *TransportError; the client treats them as opaque beyond that.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Request is a transport-neutral request. Body is encoded as JSON unless Form
// is set, in which case a multipart form is sent.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Form   *Form
}

// Form is a multipart body: plain fields plus file parts.
type Form struct {
	Fields map[string]string
	Files  []FormFile
}

type FormFile struct {
	Field    string
	Name     string
	Content  []byte
	MIMEType string
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Get is shorthand for a body-less GET request.
func Get(path string) *Request { return &Request{Method: http.MethodGet, Path: path} }

// Send builds a request with a JSON body.
func Send(method, path string, body any) *Request {
	return &Request{Method: method, Path: path, Body: body}
}

// ContentType returns the response media type header.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}
