// Package view renders HTML pages through the shared template engine into
// dispatchable responses.
package view

import (
	"bytes"
	"net/http"

	"github.com/gofiber/template/html/v2"
	"github.com/rs/zerolog/log"

	"github.com/gendoc-app/gendoc/internal/router"
)

// Renderer renders named templates with the base layout applied.
type Renderer struct {
	engine *html.Engine
	title  string
}

// New creates a renderer around the given engine. title is the site title
// made available to every template.
func New(engine *html.Engine, title string) *Renderer {
	if engine == nil {
		panic("template engine is nil")
	}

	return &Renderer{
		engine: engine,
		title:  title,
	}
}

// Render renders the named template inside the given layout with HTTP 200.
func (r *Renderer) Render(name string, binding map[string]any, layout ...string) (*router.Response, error) {
	return r.RenderStatus(http.StatusOK, name, binding, layout...)
}

// RenderStatus renders the named template with an explicit status code.
func (r *Renderer) RenderStatus(code int, name string, binding map[string]any, layout ...string) (*router.Response, error) {
	if binding == nil {
		binding = make(map[string]any)
	}

	if _, ok := binding["SiteTitle"]; !ok {
		binding["SiteTitle"] = r.title
	}

	var buf bytes.Buffer
	if err := r.engine.Render(&buf, name, binding, layout...); err != nil {
		return nil, err
	}

	return router.HTML(code, buf.String()), nil
}

// ErrorPage renders the shared error template. It never fails: when the
// template itself cannot be rendered a plain text response is produced, so an
// error reply always reaches the client.
func (r *Renderer) ErrorPage(code int, message string) *router.Response {
	resp, err := r.RenderStatus(code, "errors/error", map[string]any{
		"Code":    code,
		"Message": message,
		"Text":    http.StatusText(code),
	})
	if err != nil {
		log.Error().Err(err).Int("code", code).Msg("failed to render error page")

		return router.Text(code, message)
	}

	return resp
}
