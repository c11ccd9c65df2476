// Package api defines the HTTP request and response types for the
// tripcoach API.
//
// # API Overview
//
// The service exposes a small REST surface:
//   - POST /api/v1/chat — one-shot coaching answer
//   - POST /api/v1/chat/stream — SSE token stream (meta / token / done events)
//   - GET /api/v1/prefetch — readiness of prefetched conversation artifacts
//   - GET /health, /healthz, /ready, /version — operational endpoints
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Handlers live in the handlers subpackage; this package holds only the
// wire-level structs shared between client and server.
package api
