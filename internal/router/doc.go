// Package router implements pattern-based request dispatch with per-route
// authentication and role requirements.
//
// Routes are registered once at startup into an append-only table and matched
// first-registered-wins. Patterns are literal paths with optional {name}
// placeholders, each matching exactly one path segment. Access checks run
// before the handler, so a handler never sees a request it is not allowed to
// serve.
package router
