package userstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/authcore-io/authcore"
)

const (
	userKeyPrefix       = "usr"
	userEmailKeyPrefix  = "usre"
	userRecordVersionV1 = 1

	flagEmailVerified = 1 << 0
	flagHasLastLogin  = 1 << 1
)

// Redis is a Redis-backed [authcore.UserStore]. Records are stored under
// usr:<id>; email uniqueness is enforced through a usre:<email> index key
// written with SETNX.
type Redis struct {
	redis *redis.Client
}

func NewRedis(redisClient *redis.Client) *Redis {
	return &Redis{redis: redisClient}
}

func (s *Redis) userKey(id string) string {
	return userKeyPrefix + ":" + id
}

func (s *Redis) emailKey(email string) string {
	return userEmailKeyPrefix + ":" + email
}

func (s *Redis) Create(ctx context.Context, input authcore.CreateUserInput) (authcore.User, error) {
	user := authcore.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		CreatedAt:    input.CreatedAt,
		UpdatedAt:    input.CreatedAt,
	}

	ok, err := s.redis.SetNX(ctx, s.emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return authcore.User{}, backendFault(err)
	}
	if !ok {
		return authcore.User{}, authcore.ErrDuplicateEmail
	}

	encoded, err := encodeUserRecord(user)
	if err != nil {
		return authcore.User{}, err
	}
	if err := s.redis.Set(ctx, s.userKey(user.ID), encoded, 0).Err(); err != nil {
		// release the email reservation so the caller can retry
		_ = s.redis.Del(ctx, s.emailKey(user.Email)).Err()
		return authcore.User{}, backendFault(err)
	}

	return user, nil
}

func (s *Redis) FindByEmail(ctx context.Context, email string) (authcore.User, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return authcore.User{}, authcore.ErrUserNotFound
		}
		return authcore.User{}, backendFault(err)
	}

	user, err := s.FindByID(ctx, id)
	if errors.Is(err, authcore.ErrUserNotFound) {
		// dangling index entry left by a deleted record
		_ = s.redis.Del(ctx, s.emailKey(email)).Err()
	}
	return user, err
}

func (s *Redis) FindByID(ctx context.Context, id string) (authcore.User, error) {
	data, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return authcore.User{}, authcore.ErrUserNotFound
		}
		return authcore.User{}, backendFault(err)
	}

	return decodeUserRecord(data)
}

// Save persists an updated record. The email key is immutable; Save never
// touches the email index.
func (s *Redis) Save(ctx context.Context, user authcore.User) (authcore.User, error) {
	encoded, err := encodeUserRecord(user)
	if err != nil {
		return authcore.User{}, err
	}
	if err := s.redis.Set(ctx, s.userKey(user.ID), encoded, 0).Err(); err != nil {
		return authcore.User{}, backendFault(err)
	}
	return user, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.redis.Del(ctx, s.userKey(id), s.emailKey(user.Email)).Err(); err != nil {
		return backendFault(err)
	}
	return nil
}

func backendFault(err error) error {
	return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
}

func encodeUserRecord(user authcore.User) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(userRecordVersionV1)

	var flags byte
	if user.EmailVerified {
		flags |= flagEmailVerified
	}
	if user.LastLoginAt != nil {
		flags |= flagHasLastLogin
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, user.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, user.UpdatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if user.LastLoginAt != nil {
		if err := binary.Write(&buf, binary.BigEndian, user.LastLoginAt.UnixMilli()); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{user.ID, user.Email, user.Name, user.PasswordHash} {
		if len(field) > 65535 {
			return nil, errors.New("user record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeUserRecord(data []byte) (authcore.User, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return authcore.User{}, err
	}
	if version != userRecordVersionV1 {
		return authcore.User{}, errors.New("invalid user record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return authcore.User{}, err
	}

	var createdAt, updatedAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return authcore.User{}, err
	}
	if err := binary.Read(reader, binary.BigEndian, &updatedAt); err != nil {
		return authcore.User{}, err
	}

	user := authcore.User{
		EmailVerified: flags&flagEmailVerified != 0,
		CreatedAt:     time.UnixMilli(createdAt).UTC(),
		UpdatedAt:     time.UnixMilli(updatedAt).UTC(),
	}

	if flags&flagHasLastLogin != 0 {
		var lastLogin int64
		if err := binary.Read(reader, binary.BigEndian, &lastLogin); err != nil {
			return authcore.User{}, err
		}
		at := time.UnixMilli(lastLogin).UTC()
		user.LastLoginAt = &at
	}

	for _, field := range []*string{&user.ID, &user.Email, &user.Name, &user.PasswordHash} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return authcore.User{}, err
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(reader, value); err != nil {
			return authcore.User{}, err
		}
		*field = string(value)
	}

	return user, nil
}
