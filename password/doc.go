// Package password provides the Argon2id password hasher used by the
// engine. Digests are PHC-encoded strings, so parameter upgrades can be
// detected and applied on the next successful verify.
package password
