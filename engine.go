package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/mail"
	"github.com/authcore-io/authcore/password"
)

// Engine is the authentication orchestrator. It sequences the credential
// store, the registration token and 2FA code stores, the password hasher,
// and the session token issuer into the register / verify / login /
// login-verify flows. Construct through [Builder.Build]; safe for
// concurrent use afterwards.
type Engine struct {
	config     Config
	users      UserStore
	mailer     mail.Mailer
	clock      Clock
	logger     *slog.Logger
	displayLoc *time.Location

	registrationStore *registrationTokenStore
	twoFactorStore    *twoFactorCodeStore
	registerThrottle  *fixedWindowThrottle
	loginThrottle     *fixedWindowThrottle
	verifyThrottle    *fixedWindowThrottle

	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	tokens       *jwt.Manager
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were shed because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(msg, args...)
}

// ValidateAccessToken verifies a signed access token and returns its
// claims. Expired tokens fail with [ErrSessionTokenExpired]; all other
// verification failures map to [ErrTokenInvalid].
func (e *Engine) ValidateAccessToken(ctx context.Context, token string) (*TokenClaims, error) {
	return e.validateToken(ctx, token, jwt.KindAccess)
}

// ValidateRefreshToken verifies a signed refresh token and returns its
// claims.
func (e *Engine) ValidateRefreshToken(ctx context.Context, token string) (*TokenClaims, error) {
	return e.validateToken(ctx, token, jwt.KindRefresh)
}

func (e *Engine) validateToken(ctx context.Context, token, kind string) (*TokenClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	start := e.clock.Now()
	claims, err := e.tokens.Validate(token, kind)
	end := e.clock.Now()
	if e.metrics != nil {
		e.metrics.Observe(MetricTokenValidateLatency, end.Sub(start))
	}

	if err != nil {
		mapped := ErrTokenInvalid
		if errors.Is(err, jwt.ErrTokenExpired) {
			mapped = ErrSessionTokenExpired
		}
		e.emitAudit(ctx, auditEventSessionTokenRejected, false, "", "", mapped, nil)
		return nil, mapped
	}

	out := &TokenClaims{
		Subject: claims.Subject,
		Kind:    claims.Kind,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	e.emitAudit(ctx, auditEventSessionTokenValidated, true, "", claims.Subject, nil, func() map[string]string {
		return auditLatencyMetadata(start, end)
	})

	return out, nil
}

// storeFault normalizes unexpected store failures onto ErrStoreUnavailable
// while letting already-wrapped faults pass through unchanged.
func storeFault(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
