package authcore

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrEmailTaken is returned by Register when the email already belongs
	// to an existing user.
	ErrEmailTaken = errors.New("email already registered")

	// ErrDuplicateEmail is the store-level uniqueness violation. UserStore
	// implementations must return it from Create when the email key is
	// already bound; Register maps it to [ErrEmailTaken].
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrRegistrationInvalid is returned for malformed registration input.
	ErrRegistrationInvalid = errors.New("invalid registration request")

	// ErrRegistrationRateLimited is returned when registration throttling
	// rejects the request.
	ErrRegistrationRateLimited = errors.New("registration rate limited")

	// ErrRegistrationTokenNotFound is returned when a verification token is
	// absent, malformed, or already consumed.
	ErrRegistrationTokenNotFound = errors.New("registration token not found")

	// ErrRegistrationTokenExpired is returned when the verification token
	// exists but its expiry has passed. The token is deleted in that case.
	ErrRegistrationTokenExpired = errors.New("registration token expired")

	// ErrAlreadyVerified is returned when a verification token resolves to
	// a user whose email is already verified.
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrUserNotFound is returned when an email or user id does not resolve.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailNotVerified is returned by Login before the registration
	// token has been consumed.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrInvalidCredentials is returned on password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLoginRateLimited is returned when login throttling rejects the
	// attempt.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrInvalidCode is returned by LoginVerify when no active 2FA code
	// exists for the email or the submitted code does not match.
	ErrInvalidCode = errors.New("invalid two-factor code")

	// ErrCodeRateLimited is returned when 2FA verification throttling
	// rejects the attempt.
	ErrCodeRateLimited = errors.New("two-factor verification rate limited")

	// ErrPasswordPolicy is returned when a password fails the hasher's
	// minimum requirements.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrTokenInvalid is returned when a session token's signature or
	// claims do not verify.
	ErrTokenInvalid = errors.New("invalid session token")

	// ErrSessionTokenExpired is returned when a session token is past its
	// expiry but otherwise well formed.
	ErrSessionTokenExpired = errors.New("session token expired")

	// ErrNoLoginRecorded is returned by LastLogin for users who never
	// completed a full login.
	ErrNoLoginRecorded = errors.New("no login recorded")

	// ErrStoreUnavailable wraps transport and persistence failures. It is
	// always surfaced and never silently retried by the engine.
	ErrStoreUnavailable = errors.New("store unavailable")
)
