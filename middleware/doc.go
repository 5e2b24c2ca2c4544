// Package middleware exposes an HTTP adapter for access-token
// authorization built on top of authcore.Engine.
//
// [Guard] reads the Authorization header, calls Engine.Authorize, and
// injects the result into the request context for downstream handlers
// via [AuthResultFromContext].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from
//     Engine.Authorize.
package middleware
