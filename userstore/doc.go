// Package userstore provides ready-made implementations of the engine's
// credential store interface: a Redis-backed store for deployments that
// keep challenge state and user records in the same logical store, and an
// in-memory store for tests and examples.
package userstore
