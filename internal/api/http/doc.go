// Package http exposes the context registry over a JSON API.
//
// Routes:
//   - POST   /v1/contexts            create a context from seed globals
//   - GET    /v1/contexts            list live contexts
//   - GET    /v1/contexts/:id        metadata and globals snapshot
//   - POST   /v1/contexts/:id/run    run a script
//   - DELETE /v1/contexts/:id        dispose
//   - POST   /v1/eval                one-shot run in a throwaway context
//   - GET    /health, /stats
//
// Script failures answer 422 with the error kind, name and stack; values a
// script threw are exported into the "thrown" field.
package http
