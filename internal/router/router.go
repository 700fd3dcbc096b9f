package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/db/models"
)

// HandlerFunc handles one dispatched request. A returned *Response is sent
// unchanged; any other non-nil value is wrapped as a 200 JSON body; a nil
// value with a nil error produces 204 No Content. A non-nil error is handled
// by the dispatcher's error boundary.
type HandlerFunc func(req *Request) (any, error)

// ErrorRenderer renders an HTML error page for non-JSON clients. When nil,
// plain text is used.
type ErrorRenderer func(req *Request, code int, message string) *Response

type segment struct {
	literal string
	param   string
}

type route struct {
	method      string
	pattern     string
	segments    []segment
	handler     HandlerFunc
	requireAuth bool
	requireRole string
}

// Router is an ordered route table. Registration happens once at startup;
// dispatch is read-only and safe for concurrent use.
type Router struct {
	routes      []*route
	devMode     bool
	renderError ErrorRenderer
	recorder    *audit.Recorder
}

// Option configures a Router.
type Option func(*Router)

// WithDevMode makes handler error details visible in 500 responses. Outside
// dev mode clients only ever see a generic message.
func WithDevMode(enabled bool) Option {
	return func(r *Router) {
		r.devMode = enabled
	}
}

// WithErrorRenderer installs the HTML error page renderer.
func WithErrorRenderer(render ErrorRenderer) Option {
	return func(r *Router) {
		r.renderError = render
	}
}

// WithAuditRecorder installs the recorder used for denied-access events.
func WithAuditRecorder(recorder *audit.Recorder) Option {
	return func(r *Router) {
		r.recorder = recorder
	}
}

// New creates an empty router.
func New(opts ...Option) *Router {
	r := &Router{}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RouteOption configures a single route at registration time.
type RouteOption func(*route)

// WithAuth marks the route as requiring an authenticated session.
func WithAuth() RouteOption {
	return func(rt *route) {
		rt.requireAuth = true
	}
}

// WithRole marks the route as requiring the given role. Implies WithAuth.
func WithRole(role string) RouteOption {
	return func(rt *route) {
		rt.requireAuth = true
		rt.requireRole = role
	}
}

// Register appends a route to the table. Routes are matched in registration
// order, so more specific patterns must be registered before overlapping
// generic ones. Registering the same (method, pattern) pair twice returns
// ErrDuplicateRoute.
func (r *Router) Register(method, pattern string, handler HandlerFunc, opts ...RouteOption) error {
	segments, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	method = strings.ToUpper(method)

	for _, existing := range r.routes {
		if existing.method == method && existing.pattern == pattern {
			return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, pattern)
		}
	}

	rt := &route{
		method:   method,
		pattern:  pattern,
		segments: segments,
		handler:  handler,
	}

	for _, opt := range opts {
		opt(rt)
	}

	r.routes = append(r.routes, rt)

	return nil
}

func compilePattern(pattern string) ([]segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with a slash", ErrInvalidPattern, pattern)
	}

	parts := strings.Split(pattern, "/")

	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" {
				return nil, fmt.Errorf("%w: %q has an empty placeholder", ErrInvalidPattern, pattern)
			}

			segments = append(segments, segment{param: name})

			continue
		}

		if strings.ContainsAny(part, "{}") {
			return nil, fmt.Errorf("%w: %q has a malformed placeholder", ErrInvalidPattern, pattern)
		}

		segments = append(segments, segment{literal: part})
	}

	return segments, nil
}

// match finds the first route matching method and path and the extracted
// placeholder values.
func (r *Router) match(method, path string) (*route, map[string]string) {
	parts := strings.Split(path, "/")

outer:
	for _, rt := range r.routes {
		if rt.method != method || len(rt.segments) != len(parts) {
			continue
		}

		var params map[string]string

		for i, seg := range rt.segments {
			if seg.param != "" {
				if parts[i] == "" {
					continue outer
				}

				if params == nil {
					params = make(map[string]string)
				}

				params[seg.param] = parts[i]

				continue
			}

			if seg.literal != parts[i] {
				continue outer
			}
		}

		return rt, params
	}

	return nil, nil
}

// Dispatch resolves and runs the handler for the request, applying access
// checks first. It always produces a response.
func (r *Router) Dispatch(req *Request) *Response {
	rt, params := r.match(strings.ToUpper(req.Method), req.Path)
	if rt == nil {
		return r.errorResponse(req, http.StatusNotFound, "page not found")
	}

	req.Params = params

	if resp := r.checkAccess(req, rt); resp != nil {
		return resp
	}

	result, err := rt.handler(req)
	if err != nil {
		log.Error().Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("handler failed")

		message := "internal server error"
		if r.devMode {
			message = err.Error()
		}

		return r.errorResponse(req, http.StatusInternalServerError, message)
	}

	switch v := result.(type) {
	case *Response:
		return v
	case nil:
		return &Response{Status: http.StatusNoContent}
	default:
		return JSON(http.StatusOK, v)
	}
}

// checkAccess enforces the route's auth and role requirements. A nil return
// means access is granted.
func (r *Router) checkAccess(req *Request, rt *route) *Response {
	if !rt.requireAuth {
		return nil
	}

	sess := req.Session

	if sess == nil || !sess.Authenticated() {
		log.Warn().
			Str("method", req.Method).
			Str("path", req.Path).
			Str("ip", req.RemoteIP).
			Msg("denied anonymous access to protected route")

		r.recordDenied(req, "")

		return r.errorResponse(req, http.StatusForbidden, "forbidden")
	}

	if rt.requireRole != "" {
		user := sess.User()
		if user == nil || user.Role != rt.requireRole {
			log.Warn().
				Str("method", req.Method).
				Str("path", req.Path).
				Uint64("user_id", sess.UserID()).
				Str("required_role", rt.requireRole).
				Msg("denied access to role-restricted route")

			r.recordDenied(req, rt.requireRole)

			return r.errorResponse(req, http.StatusForbidden, "forbidden")
		}
	}

	return nil
}

func (r *Router) recordDenied(req *Request, requiredRole string) {
	if r.recorder == nil {
		return
	}

	event := audit.Event{
		Action:    models.AuditForbidden,
		IPAddress: req.RemoteIP,
		UserAgent: req.UserAgent,
		Details: map[string]any{
			"method": req.Method,
			"path":   req.Path,
		},
	}

	if requiredRole != "" {
		event.Details["required_role"] = requiredRole
	}

	if sess := req.Session; sess != nil && sess.Authenticated() {
		userID := sess.UserID()
		event.UserID = &userID

		if user := sess.User(); user != nil {
			event.Username = user.Username
		}
	}

	r.recorder.Record(event)
}

// errorResponse formats an error reply for the client: JSON for AJAX and
// JSON clients, an HTML page otherwise.
func (r *Router) errorResponse(req *Request, code int, message string) *Response {
	if req.WantsJSON() {
		return JSON(code, map[string]string{"error": message})
	}

	if r.renderError != nil {
		return r.renderError(req, code, message)
	}

	return Text(code, message)
}
