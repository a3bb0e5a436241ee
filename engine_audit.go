package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"
)

const (
	auditEventRegisterSuccess        = "register_success"
	auditEventRegisterFailure        = "register_failure"
	auditEventRegisterDuplicate      = "register_duplicate"
	auditEventEmailVerifySuccess     = "email_verification_success"
	auditEventEmailVerifyFailure     = "email_verification_failure"
	auditEventLoginCodeIssued        = "login_code_issued"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginVerifyFailure     = "login_verify_failure"
	auditEventMailDeliveryFailed     = "mail_delivery_failed"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
	auditEventStoreAnomalyDetected   = "store_anomaly_detected"
	auditEventSessionTokenRejected   = "session_token_rejected"
	auditEventSessionTokenValidated  = "session_token_validated"
)

// AuditErrorCode is the stable machine-readable error label recorded on
// audit events. It is derived from the engine's sentinel errors, never
// from raw error strings.
type AuditErrorCode string

const (
	auditErrEmailTaken        AuditErrorCode = "email_taken"
	auditErrTokenNotFound     AuditErrorCode = "token_not_found"
	auditErrTokenExpired      AuditErrorCode = "token_expired"
	auditErrAlreadyVerified   AuditErrorCode = "already_verified"
	auditErrUserNotFound      AuditErrorCode = "user_not_found"
	auditErrEmailNotVerified  AuditErrorCode = "email_not_verified"
	auditErrInvalidCredential AuditErrorCode = "invalid_credentials"
	auditErrInvalidCode       AuditErrorCode = "invalid_code"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrPasswordPolicy    AuditErrorCode = "password_policy"
	auditErrSessionInvalid    AuditErrorCode = "session_token_invalid"
	auditErrSessionExpired    AuditErrorCode = "session_token_expired"
	auditErrNoLoginRecorded   AuditErrorCode = "no_login_recorded"
	auditErrInvalidRequest    AuditErrorCode = "invalid_request"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	email string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", email, nil, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrDuplicateEmail):
		return auditErrEmailTaken
	case errors.Is(err, ErrRegistrationTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrRegistrationTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrEmailNotVerified
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredential
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrRegistrationRateLimited),
		errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrCodeRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrTokenInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrSessionTokenExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrNoLoginRecorded):
		return auditErrNoLoginRecorded
	case errors.Is(err, ErrRegistrationInvalid):
		return auditErrInvalidRequest
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func auditLatencyMetadata(start, end time.Time) map[string]string {
	return map[string]string{
		"latency_ms": strconv.FormatInt(end.Sub(start).Milliseconds(), 10),
	}
}
