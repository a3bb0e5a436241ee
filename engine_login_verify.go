package authcore

import (
	"context"
	"errors"

	"github.com/authcore-io/authcore/internal"
)

const lastLoginLayout = "2006-01-02 15:04:05.000 Z07:00"

// LoginVerify completes a login: it consumes the active one-time code for
// the email, records the login time, and returns a signed access/refresh
// token pair. The code is retired atomically with the match, so two
// concurrent submissions of the same correct code yield exactly one
// success. A wrong guess leaves the code active until its natural expiry.
func (e *Engine) LoginVerify(ctx context.Context, email, code string) (*LoginVerifyResult, error) {
	if e == nil || e.users == nil || e.twoFactorStore == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.verifyThrottle.Check(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, errThrottleRejected) {
			e.metricInc(MetricCodeRateLimited)
			e.emitRateLimit(ctx, "login_verify", email)
			return nil, ErrCodeRateLimited
		}
		return nil, storeFault(err)
	}

	if !validCodeShape(code, e.config.TwoFactor.CodeDigits) {
		e.metricInc(MetricLoginVerifyFailure)
		e.emitAudit(ctx, auditEventLoginVerifyFailure, false, "", email, ErrInvalidCode, nil)
		return nil, ErrInvalidCode
	}

	record, err := e.twoFactorStore.Consume(ctx, email, internal.HashBytes([]byte(code)))
	if err != nil {
		mapped := mapTwoFactorStoreError(err)
		if errors.Is(mapped, ErrInvalidCode) {
			e.metricInc(MetricLoginVerifyFailure)
			e.emitAudit(ctx, auditEventLoginVerifyFailure, false, "", email, ErrInvalidCode, nil)
		}
		return nil, mapped
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// an active code without a user record; the code is gone now
			e.warn("two-factor code referenced missing user", "email", email, "user_id", record.UserID)
			e.emitAudit(ctx, auditEventStoreAnomalyDetected, false, record.UserID, email, ErrUserNotFound, func() map[string]string {
				return map[string]string{"anomaly": "code_without_user"}
			})
			return nil, ErrUserNotFound
		}
		return nil, storeFault(err)
	}
	if user.ID != record.UserID {
		e.warn("two-factor code bound to different user", "email", email, "user_id", user.ID, "code_user_id", record.UserID)
		e.emitAudit(ctx, auditEventStoreAnomalyDetected, false, user.ID, email, ErrInvalidCode, func() map[string]string {
			return map[string]string{"anomaly": "code_user_mismatch"}
		})
		return nil, ErrInvalidCode
	}

	now := e.clock.Now()
	user.LastLoginAt = &now
	user.UpdatedAt = now
	user, err = e.users.Save(ctx, user)
	if err != nil {
		return nil, storeFault(err)
	}

	access, err := e.tokens.IssueAccess(user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.IssueRefresh(user.Email)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.Email, nil, nil)

	return &LoginVerifyResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
	}, nil
}

// LastLogin reports when the user last completed a full login, both as a
// timestamp and rendered in the configured display timezone with
// millisecond precision and a numeric UTC offset.
func (e *Engine) LastLogin(ctx context.Context, email string) (*LastLoginInfo, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeFault(err)
	}

	if user.LastLoginAt == nil {
		return nil, ErrNoLoginRecorded
	}

	at := *user.LastLoginAt
	return &LastLoginInfo{
		Email:   user.Email,
		At:      at,
		Display: at.In(e.displayLoc).Format(lastLoginLayout),
	}, nil
}

func validCodeShape(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
