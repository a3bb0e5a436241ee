// Package jwt mints and validates the stateless signed session tokens
// issued after a completed login: a short-lived access token and a
// long-lived refresh token, distinguished by a kind claim. HS256 with a
// symmetric key is the default; Ed25519 is supported for split
// sign/verify deployments.
package jwt
