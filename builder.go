package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/mail"
	"github.com/authcore-io/authcore/password"
)

// Builder assembles an [Engine]. Redis and a [UserStore] are required;
// everything else has a default (system clock, slog.Default, no-op mailer
// and audit sink, [DefaultConfig]).
type Builder struct {
	config *Config
	redis  *redis.Client
	users  UserStore
	mailer mail.Mailer
	clock  Clock
	sink   AuditSink
	logger *slog.Logger
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = &cfg
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration, wires the stores and throttles, and
// starts the audit dispatcher.
func (b *Builder) Build() (*Engine, error) {
	if b == nil {
		return nil, errors.New("nil builder")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("user store is required")
	}

	cfg := DefaultConfig()
	if b.config != nil {
		cfg = cloneConfig(*b.config)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = mail.NoOp{}
		logger.Warn("no mailer configured; verification links and login codes will not be delivered")
	}

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(cfg.JWT, clock.Now)
	if err != nil {
		return nil, err
	}

	displayLoc, err := time.LoadLocation(cfg.Display.TimeZone)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		users:      b.users,
		mailer:     mailer,
		clock:      clock,
		logger:     logger,
		displayLoc: displayLoc,

		registrationStore: newRegistrationTokenStore(b.redis, clock.Now),
		twoFactorStore:    newTwoFactorCodeStore(b.redis, clock.Now),
		registerThrottle:  newFixedWindowThrottle(b.redis, cfg.Registration.Throttle, "arr"),
		loginThrottle:     newFixedWindowThrottle(b.redis, cfg.TwoFactor.IssueThrottle, "arl"),
		verifyThrottle:    newFixedWindowThrottle(b.redis, cfg.TwoFactor.VerifyThrottle, "arv"),

		audit:        newAuditDispatcher(cfg.Audit, b.sink),
		metrics:      NewMetrics(cfg.Metrics),
		passwordHash: hasher,
		tokens:       tokens,
	}

	return engine, nil
}
