// Package jwt manages token issuance and verification for the engine:
// access tokens for resource authorization and short-lived pending
// tokens for the two-factor login handshake, distinguished by the
// purpose claim and validated with strict algorithm pinning.
package jwt
