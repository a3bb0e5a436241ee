package authcore

import (
	"context"
	"time"
)

// TokenTypeBearer is the token-type label returned with issued session
// token pairs.
const TokenTypeBearer = "Bearer"

// Clock supplies the engine's notion of current time. All expiry logic in
// the engine and its stores goes through the configured Clock so tests can
// drive it deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// User is the identity record held by a [UserStore]. Email is the unique,
// case-sensitive lookup key. EmailVerified starts false and is flipped to
// true exactly once by a successful registration-token consumption.
// LastLoginAt is nil until the first completed password+2FA login.
type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	EmailVerified bool
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateUserInput carries the fields for a new user record. CreatedAt is
// supplied by the engine's clock; stores must not substitute their own.
type CreateUserInput struct {
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore is the credential store the engine reads and writes user
// records through. Implementations must enforce email uniqueness on Create
// and surface a violation as [ErrDuplicateEmail], and must return
// [ErrUserNotFound] for lookup misses. Any other failure is treated as a
// backend fault and wrapped in [ErrStoreUnavailable] by the engine.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, input CreateUserInput) (User, error)
	Save(ctx context.Context, user User) (User, error)
	Delete(ctx context.Context, id string) error
}

// RegisterResult reports the outcome of a successful registration. The
// verification token itself is never returned here; it travels only through
// the configured mailer.
type RegisterResult struct {
	UserID         string
	TokenExpiresAt time.Time
}

// LoginVerifyResult is returned by a successful LoginVerify: the signed
// access/refresh pair plus the fixed token-type label.
type LoginVerifyResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// LastLoginInfo is returned by LastLogin. Display holds At rendered in the
// configured display timezone with millisecond precision and a numeric UTC
// offset.
type LastLoginInfo struct {
	Email   string
	At      time.Time
	Display string
}

// TokenClaims is the validated content of a session token.
type TokenClaims struct {
	Subject   string
	Kind      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
