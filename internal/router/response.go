package router

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Response is a fully materialized reply: status, headers and body. Handlers
// return one directly when they need full control; any other handler result
// is serialized by the dispatcher.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func newResponse(contentType string, code int, body []byte) *Response {
	header := make(http.Header, 1)
	header.Set("Content-Type", contentType)

	return &Response{
		Status: code,
		Header: header,
		Body:   body,
	}
}

// HTML builds a text/html response.
func HTML(code int, body string) *Response {
	return newResponse("text/html; charset=utf-8", code, []byte(body))
}

// Text builds a text/plain response.
func Text(code int, body string) *Response {
	return newResponse("text/plain; charset=utf-8", code, []byte(body))
}

// JSON builds an application/json response. Marshalling errors degrade to an
// empty object so a reply is always produced.
func JSON(code int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response body")

		body = []byte("{}")
	}

	return newResponse("application/json; charset=utf-8", code, body)
}

// Redirect builds a 303 redirect to the given location.
func Redirect(location string) *Response {
	header := make(http.Header, 1)
	header.Set("Location", location)

	return &Response{
		Status: http.StatusSeeOther,
		Header: header,
	}
}
