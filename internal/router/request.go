package router

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gendoc-app/gendoc/internal/web/session"
)

// Request is the transport-independent view of one incoming request. The web
// layer builds it from the HTTP context before dispatch.
type Request struct {
	Method    string
	Path      string
	Params    map[string]string
	Query     url.Values
	Form      url.Values
	Header    http.Header
	Body      []byte
	RemoteIP  string
	UserAgent string

	// Session is the caller's resolved session, never nil during dispatch.
	Session *session.Session
}

// Param returns the value extracted for a {name} placeholder, empty when the
// matched pattern has no such placeholder.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// FormValue returns the first form field value for the given key.
func (r *Request) FormValue(key string) string {
	return r.Form.Get(key)
}

// QueryValue returns the first query parameter value for the given key.
func (r *Request) QueryValue(key string) string {
	return r.Query.Get(key)
}

// IsAJAX reports whether the request was made via XMLHttpRequest.
func (r *Request) IsAJAX() bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// WantsJSON reports whether the client should receive JSON rather than HTML:
// AJAX callers, JSON bodies and clients accepting only application/json.
func (r *Request) WantsJSON() bool {
	if r.IsAJAX() {
		return true
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return true
	}

	accept := r.Header.Get("Accept")

	return strings.HasPrefix(accept, "application/json")
}
