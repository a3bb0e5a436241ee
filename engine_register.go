package authcore

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/authcore-io/authcore/internal"
)

// Register creates a new unverified user, issues a single-use verification
// token bound to it, and asks the mailer to deliver the verification link.
// The user record and the token are committed as one unit: if the token
// cannot be persisted the freshly created user is deleted again, so no
// unverifiable orphan user is left behind. A delivery failure after commit
// does not roll anything back; the token stays valid until its TTL.
func (e *Engine) Register(ctx context.Context, email, name, plainPassword string) (*RegisterResult, error) {
	if e == nil || e.users == nil || e.registrationStore == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") || plainPassword == "" {
		return nil, ErrRegistrationInvalid
	}

	if err := e.registerThrottle.Check(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, errThrottleRejected) {
			e.metricInc(MetricRegisterRateLimited)
			e.emitRateLimit(ctx, "register", email)
			return nil, ErrRegistrationRateLimited
		}
		return nil, storeFault(err)
	}

	hash, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, ErrPasswordPolicy, nil)
		return nil, ErrPasswordPolicy
	}

	now := e.clock.Now()
	user, err := e.users.Create(ctx, CreateUserInput{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", email, ErrEmailTaken, nil)
			return nil, ErrEmailTaken
		}
		e.metricInc(MetricRegisterFailure)
		return nil, storeFault(err)
	}

	tokenID, err := internal.NewTokenID()
	if err != nil {
		e.rollbackRegistration(ctx, user.ID)
		return nil, err
	}
	secret, err := internal.NewRegistrationSecret()
	if err != nil {
		e.rollbackRegistration(ctx, user.ID)
		return nil, err
	}

	expiresAt := now.Add(e.config.Registration.TokenTTL)
	record := &registrationTokenRecord{
		UserID:     user.ID,
		SecretHash: internal.HashRegistrationSecret(secret),
		CreatedAt:  now.Unix(),
		ExpiresAt:  expiresAt.Unix(),
	}
	if err := e.registrationStore.Save(ctx, tokenID.String(), record, e.config.Registration.TokenTTL); err != nil {
		e.rollbackRegistration(ctx, user.ID)
		e.metricInc(MetricRegisterFailure)
		return nil, mapRegistrationStoreError(err)
	}

	token := internal.EncodeRegistrationToken(tokenID, secret)
	if err := e.mailer.SendVerificationLink(ctx, user.Email, user.Name, e.verificationLink(token)); err != nil {
		e.warn("verification mail delivery failed", "email", user.Email, "err", err)
		e.metricInc(MetricMailDeliveryFailure)
		e.emitAudit(ctx, auditEventMailDeliveryFailed, false, user.ID, user.Email, nil, func() map[string]string {
			return map[string]string{"kind": "verification_link"}
		})
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, user.Email, nil, nil)

	return &RegisterResult{
		UserID:         user.ID,
		TokenExpiresAt: expiresAt,
	}, nil
}

// rollbackRegistration removes a user whose verification token never made
// it into the store. Best effort: a failure here leaves an orphan that can
// only be cleaned up operationally, so it is logged loudly.
func (e *Engine) rollbackRegistration(ctx context.Context, userID string) {
	if err := e.users.Delete(ctx, userID); err != nil {
		e.warn("failed to roll back user after token persistence failure", "user_id", userID, "err", err)
		e.emitAudit(ctx, auditEventStoreAnomalyDetected, false, userID, "", nil, func() map[string]string {
			return map[string]string{"anomaly": "orphan_user_rollback_failed"}
		})
	}
}

func (e *Engine) verificationLink(token string) string {
	base := e.config.Mail.VerificationBaseURL
	if base == "" {
		return token
	}
	return base + "?token=" + url.QueryEscape(token)
}
