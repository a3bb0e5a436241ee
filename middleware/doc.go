// Package middleware provides net/http middleware that guards routes with
// the engine's stateless access-token validation.
package middleware
