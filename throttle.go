package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errThrottleRejected    = errors.New("throttle rejected")
	errThrottleUnavailable = errors.New("throttle backend unavailable")
)

// ThrottleConfig bounds attempts per identifier (and per client IP when
// one is carried on the context) within a fixed window.
type ThrottleConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// fixedWindowThrottle counts attempts with INCR and an expiry set on the
// first hit of each window.
type fixedWindowThrottle struct {
	redis  *redis.Client
	config ThrottleConfig
	prefix string
}

func newFixedWindowThrottle(redisClient *redis.Client, cfg ThrottleConfig, prefix string) *fixedWindowThrottle {
	return &fixedWindowThrottle{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

func (t *fixedWindowThrottle) Check(ctx context.Context, identifier, ip string) error {
	if t == nil || !t.config.Enabled {
		return nil
	}

	if err := t.enforce(ctx, t.prefix+":"+identifier); err != nil {
		return err
	}
	if ip != "" {
		return t.enforce(ctx, t.prefix+"ip:"+ip)
	}
	return nil
}

func (t *fixedWindowThrottle) enforce(ctx context.Context, key string) error {
	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errThrottleUnavailable, err)
	}

	if count == 1 {
		if err := t.redis.Expire(ctx, key, t.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errThrottleUnavailable, err)
		}
	}

	if count > int64(t.config.MaxAttempts) {
		return errThrottleRejected
	}

	return nil
}
