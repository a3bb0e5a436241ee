package mail

import "context"

// Mailer is the outbound delivery capability the engine depends on. A
// delivery failure never rolls back already-committed engine state; the
// issued token or code stays valid until its natural expiry.
//
// Implementations are selected at configuration time (see [NewSMTP] and
// [NoOp]) and must be safe for concurrent use.
type Mailer interface {
	// SendVerificationLink delivers the registration verification link.
	SendVerificationLink(ctx context.Context, to, name, link string) error
	// SendLoginCode delivers the one-time login code.
	SendLoginCode(ctx context.Context, to, name, code string) error
}

// NoOp discards all mail. It is the default when no mailer is configured;
// useful in tests and for engines whose delivery happens out of band.
type NoOp struct{}

func (NoOp) SendVerificationLink(context.Context, string, string, string) error { return nil }
func (NoOp) SendLoginCode(context.Context, string, string, string) error        { return nil }
