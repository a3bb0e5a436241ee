package authcore

import (
	"context"
	"errors"

	"github.com/authcore-io/authcore/internal"
)

// Login checks the password for a verified user and, on success, issues a
// fresh one-time code and asks the mailer to deliver it. Issuing writes
// the user's single code slot, so any previous unissued code is retired in
// the same store write; a user never has more than one active code.
//
// The distinct error kinds ([ErrUserNotFound], [ErrEmailNotVerified],
// [ErrInvalidCredentials]) are the only signal about why a login failed.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) error {
	if e == nil || e.users == nil || e.twoFactorStore == nil {
		return ErrEngineNotReady
	}
	if email == "" || plainPassword == "" {
		return ErrInvalidCredentials
	}

	if err := e.loginThrottle.Check(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, errThrottleRejected) {
			e.metricInc(MetricLoginRateLimited)
			e.emitRateLimit(ctx, "login", email)
			return ErrLoginRateLimited
		}
		return storeFault(err)
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrUserNotFound, nil)
			return ErrUserNotFound
		}
		return storeFault(err)
	}

	if !user.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, user.Email, ErrEmailNotVerified, nil)
		return ErrEmailNotVerified
	}

	ok, err := e.passwordHash.Verify(plainPassword, user.PasswordHash)
	if err != nil {
		// unparseable stored digest; indistinguishable from a mismatch to
		// the caller
		e.warn("stored password digest unreadable", "user_id", user.ID, "err", err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, user.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, user.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	e.maybeUpgradeDigest(ctx, user, plainPassword)

	code, err := internal.NewCode(e.config.TwoFactor.CodeDigits)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	record := &twoFactorCodeRecord{
		UserID:    user.ID,
		CodeHash:  internal.HashBytes([]byte(code)),
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.TwoFactor.CodeTTL).Unix(),
	}
	if err := e.twoFactorStore.Save(ctx, user.Email, record, e.config.TwoFactor.CodeTTL); err != nil {
		return mapTwoFactorStoreError(err)
	}

	if err := e.mailer.SendLoginCode(ctx, user.Email, user.Name, code); err != nil {
		e.warn("login code delivery failed", "email", user.Email, "err", err)
		e.metricInc(MetricMailDeliveryFailure)
		e.emitAudit(ctx, auditEventMailDeliveryFailed, false, user.ID, user.Email, nil, func() map[string]string {
			return map[string]string{"kind": "login_code"}
		})
	}

	e.metricInc(MetricLoginCodeIssued)
	e.emitAudit(ctx, auditEventLoginCodeIssued, true, user.ID, user.Email, nil, nil)

	return nil
}

// maybeUpgradeDigest rehashes the password when the stored digest was
// produced with weaker parameters than the current configuration. Best
// effort; the login proceeds either way.
func (e *Engine) maybeUpgradeDigest(ctx context.Context, user User, plainPassword string) {
	upgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}

	rehashed, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		return
	}

	user.PasswordHash = rehashed
	user.UpdatedAt = e.clock.Now()
	if _, err := e.users.Save(ctx, user); err != nil {
		e.warn("password digest upgrade failed", "user_id", user.ID, "err", err)
	}
}
