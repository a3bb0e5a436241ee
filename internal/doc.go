// Package internal holds token, secret, and code generation helpers shared
// by the engine. Not part of the public API.
package internal
