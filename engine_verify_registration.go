package authcore

import (
	"context"
	"errors"

	"github.com/authcore-io/authcore/internal"
)

// VerifyRegistration consumes a verification token and flips the bound
// user to verified. The token is removed by the store the moment a
// consumption attempt reads it, so a second call with the same value fails
// with [ErrRegistrationTokenNotFound] regardless of how the first one
// ended.
func (e *Engine) VerifyRegistration(ctx context.Context, token string) error {
	if e == nil || e.users == nil || e.registrationStore == nil {
		return ErrEngineNotReady
	}

	tokenID, secret, err := internal.DecodeRegistrationToken(token)
	if err != nil {
		e.metricInc(MetricEmailVerifyFailure)
		e.emitAudit(ctx, auditEventEmailVerifyFailure, false, "", "", ErrRegistrationTokenNotFound, nil)
		return ErrRegistrationTokenNotFound
	}

	record, err := e.registrationStore.Consume(ctx, tokenID.String(), internal.HashRegistrationSecret(secret))
	if err != nil {
		mapped := mapRegistrationStoreError(err)
		e.metricInc(MetricEmailVerifyFailure)
		e.emitAudit(ctx, auditEventEmailVerifyFailure, false, "", "", mapped, nil)
		return mapped
	}

	user, err := e.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// the token outlived its user; surfaced, never swallowed
			e.warn("verification token referenced missing user", "user_id", record.UserID)
			e.metricInc(MetricEmailVerifyFailure)
			e.emitAudit(ctx, auditEventStoreAnomalyDetected, false, record.UserID, "", ErrUserNotFound, func() map[string]string {
				return map[string]string{"anomaly": "token_without_user"}
			})
			return ErrUserNotFound
		}
		return storeFault(err)
	}

	if user.EmailVerified {
		// the token was consumed above and stays consumed
		e.metricInc(MetricEmailVerifyFailure)
		e.emitAudit(ctx, auditEventEmailVerifyFailure, false, user.ID, user.Email, ErrAlreadyVerified, nil)
		return ErrAlreadyVerified
	}

	user.EmailVerified = true
	user.UpdatedAt = e.clock.Now()
	if _, err := e.users.Save(ctx, user); err != nil {
		return storeFault(err)
	}

	e.metricInc(MetricEmailVerifySuccess)
	e.emitAudit(ctx, auditEventEmailVerifySuccess, true, user.ID, user.Email, nil, nil)

	return nil
}
