package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/password"
)

// RegistrationConfig governs email-verification tokens issued at signup.
type RegistrationConfig struct {
	// TokenTTL bounds how long a verification token stays consumable.
	TokenTTL time.Duration
	// Throttle bounds registration attempts per email and per IP.
	Throttle ThrottleConfig
}

// TwoFactorConfig governs the one-time login codes.
type TwoFactorConfig struct {
	// CodeTTL bounds how long an issued code stays verifiable.
	CodeTTL time.Duration
	// CodeDigits is the code length; 6 to 10 digits.
	CodeDigits int
	// IssueThrottle bounds password-login attempts (which issue codes).
	IssueThrottle ThrottleConfig
	// VerifyThrottle bounds code verification attempts. The code space is
	// 10^CodeDigits within CodeTTL, so this is the only brute-force bound.
	VerifyThrottle ThrottleConfig
}

// MailConfig holds delivery-facing settings the engine itself needs. The
// transport lives in the mail package.
type MailConfig struct {
	// VerificationBaseURL is prepended to registration tokens to build the
	// link mailed to users, as base?token=<token>. When empty the raw
	// token is handed to the mailer.
	VerificationBaseURL string
}

// DisplayConfig controls presentation formatting of engine outputs.
type DisplayConfig struct {
	// TimeZone is the IANA zone name used to render LastLogin displays.
	TimeZone string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking request paths when the
	// buffer is full. Dropped counts are observable via AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the root engine configuration. Build clones it, so mutating a
// Config after Build has no effect on the running engine.
type Config struct {
	// ProductionMode tightens Validate: throttles and audit must be on
	// and HS256 keys must be at least 32 bytes.
	ProductionMode bool

	Registration RegistrationConfig
	TwoFactor    TwoFactorConfig
	JWT          jwt.Config
	Password     password.Config
	Mail         MailConfig
	Display      DisplayConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// DefaultConfig returns the reference configuration: 24h verification
// tokens, 6-digit codes with a 5 minute TTL, 15m/168h token lifetimes,
// and throttles on with generous windows. The JWT signing key must still
// be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Registration: RegistrationConfig{
			TokenTTL: 24 * time.Hour,
			Throttle: ThrottleConfig{
				Enabled:     true,
				MaxAttempts: 5,
				Window:      time.Hour,
			},
		},
		TwoFactor: TwoFactorConfig{
			CodeTTL:    5 * time.Minute,
			CodeDigits: 6,
			IssueThrottle: ThrottleConfig{
				Enabled:     true,
				MaxAttempts: 10,
				Window:      10 * time.Minute,
			},
			VerifyThrottle: ThrottleConfig{
				Enabled:     true,
				MaxAttempts: 10,
				Window:      5 * time.Minute,
			},
		},
		JWT: jwt.Config{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: jwt.MethodHS256,
			Leeway:        30 * time.Second,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Display: DisplayConfig{
			TimeZone: "Asia/Taipei",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks internal consistency. The jwt and password packages
// validate their own sections at construction time; Validate covers
// everything else plus the production-mode tightening.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}

	if c.Registration.TokenTTL <= 0 || c.Registration.TokenTTL > 72*time.Hour {
		return errors.New("registration token TTL must be in (0, 72h]")
	}
	if err := validateThrottle("registration", c.Registration.Throttle); err != nil {
		return err
	}

	if c.TwoFactor.CodeTTL <= 0 || c.TwoFactor.CodeTTL > 15*time.Minute {
		return errors.New("two-factor code TTL must be in (0, 15m]")
	}
	if c.TwoFactor.CodeDigits < 6 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("two-factor code digits must be in [6, 10]")
	}
	if err := validateThrottle("two-factor issue", c.TwoFactor.IssueThrottle); err != nil {
		return err
	}
	if err := validateThrottle("two-factor verify", c.TwoFactor.VerifyThrottle); err != nil {
		return err
	}

	if c.Mail.VerificationBaseURL != "" {
		u, err := url.Parse(c.Mail.VerificationBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("verification base URL must be absolute")
		}
	}

	if c.Display.TimeZone == "" {
		return errors.New("display timezone is required")
	}
	if _, err := time.LoadLocation(c.Display.TimeZone); err != nil {
		return fmt.Errorf("invalid display timezone %q: %v", c.Display.TimeZone, err)
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must be >= 0")
	}

	if c.ProductionMode {
		if !c.Registration.Throttle.Enabled ||
			!c.TwoFactor.IssueThrottle.Enabled ||
			!c.TwoFactor.VerifyThrottle.Enabled {
			return errors.New("production mode requires all throttles enabled")
		}
		if !c.Audit.Enabled {
			return errors.New("production mode requires audit enabled")
		}
		if c.JWT.SigningMethod == jwt.MethodHS256 && len(c.JWT.PrivateKey) < 32 {
			return errors.New("production mode requires an hs256 key of at least 32 bytes")
		}
	}

	return nil
}

func validateThrottle(scope string, cfg ThrottleConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("%s throttle max attempts must be > 0", scope)
	}
	if cfg.Window <= 0 {
		return fmt.Errorf("%s throttle window must be > 0", scope)
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
