// Package authcore implements a credential and token lifecycle engine for
// email-based multi-step authentication: password registration gated by a
// single-use email-verification token, password login gated by a single-use
// short-lived 2FA code, and issuance of signed stateless access/refresh
// tokens once both factors check out.
//
// The engine owns the lifecycle rules (single-use tokens, expiry races, the
// at-most-one-active-code-per-user invariant) and the state machine that
// sequences them. Everything else is an injected collaborator: user records
// live behind [UserStore], outbound delivery behind the mail.Mailer
// interface, password hashing behind the Argon2id hasher, and time behind
// [Clock]. Challenge state (registration tokens, 2FA codes, rate-limit
// windows) is kept in Redis so that single-use consumption stays atomic
// under concurrent requests.
//
// Engines are constructed through [Builder.Build] and are safe for use from
// multiple goroutines afterwards.
package authcore
