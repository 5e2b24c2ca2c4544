// Package authcore provides a session and credential lifecycle engine:
// short-lived JWT access tokens, rotating opaque refresh tokens with
// reuse detection, a Redis-backed revocation ledger, TOTP two-factor
// login, and OAuth identity resolution.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], the [UserStore] port, and value types (LoginResult,
// AuthResult, MetricsSnapshot, etc.). Token storage lives in the
// refresh and blacklist sub-packages; JWT handling lives in jwt.
// Account persistence is injected through [UserStore] and never owned
// by this module.
//
// # What this package must NOT do
//
//   - Expose Redis clients, key layouts, or stored-record encodings in
//     its public API.
//   - Hold locks across user-store or Redis calls. All multi-writer
//     races are settled in the storage layer (Lua scripts, conditional
//     inserts), never with in-process mutexes.
//   - Perform I/O outside of Engine methods (construction via Builder
//     is allocation-only apart from one argon2 derivation).
//
// # Performance contract
//
// Authorize is the hot path: one JWT parse plus one Redis EXISTS.
// Refresh settles rotation in a single Lua script execution. Login is
// dominated by the argon2 derivation and takes that cost on every
// outcome, including unknown users.
package authcore
