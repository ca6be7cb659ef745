// Package api provides the JSON REST API server.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → Tracing → CORS → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unauthenticated.
//
// # Authentication
//
// Protected routes require an Authorization: Bearer header carrying an
// HS256 access token issued by POST /api/v1/login/access-token. The
// status mapping mirrors the classic token-dependency chain: a missing
// or malformed header is 401, a token that fails verification is 403,
// a token whose user no longer exists is 404, and a disabled account
// is 400. Admin-only routes answer 403 for everyone else.
//
// The integration surfaces (vector sync and search, GitHub and Jira
// directory reads, scoring) are unauthenticated; the webhook endpoints
// are guarded by HMAC signatures instead of bearer tokens.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health: process liveness
//   - GET /ready: database ping with a 2s timeout
//
// Login:
//   - POST /api/v1/login/access-token: form-encoded username/password
//   - POST /api/v1/login/test-token: echoes the token's user
//
// Users (account management), items (owner-scoped CRUD), resource
// profiles (external identity links, skills, workloads, account
// matching), pull request vectors (sync + semantic search), GitHub
// (developer directory + App installation webhook), Jira (OAuth
// connect, directory, issue sync, vectors, live workloads, webhook)
// and scoring (best-fit ranking) are registered under /api/v1; see
// server.go for the full route table.
//
// # Error Handling
//
// Errors use an envelope format:
//
//	{"error": {"code": "...", "message": "..."}}
//
// code is a stable machine-readable identifier; message is meant for
// humans. Success responses carry the resource JSON directly.
//
// # Security
//
// The middleware stack enforces:
//   - Per-IP rate limiting (token bucket, 60 req/min burst)
//   - CORS with explicit origin allowlist
//   - Security headers (CSP, HSTS, X-Frame-Options, etc.)
//   - Webhook signature verification (GitHub always, Jira when a
//     shared secret is configured)
package api
