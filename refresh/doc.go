// Package refresh implements the Redis-backed refresh-token ledger.
//
// # Storage model
//
// Records are JSON blobs keyed by the SHA-256 hash of the opaque token;
// the plaintext token is never stored. A per-user Redis SET indexes the
// hashes of live tokens so revoke-everything operations need no scan.
//
// # Rotation semantics
//
// Consume is a single Lua script: fetch, classify (missing, revoked,
// expired, live), and soft-revoke in one atomic step. Revocation keeps
// the record in place with RevokedAt and RevokedReason set, which is
// what lets a later presentation of the same token be recognized as
// reuse and attributed to a user.
//
// # What this package must NOT do
//
//   - Generate or hash tokens (callers pass hashes).
//   - Decide policy: reuse cascades and error mapping belong to the
//     Engine.
package refresh
