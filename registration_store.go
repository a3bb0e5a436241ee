package authcore

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	registrationKeyPrefix       = "art"
	registrationRecordVersionV1 = 1
)

var (
	errRegistrationNotFound = errors.New("registration token not found")
	errRegistrationExpired  = errors.New("registration token expired")
	errRegistrationBackend  = errors.New("registration store unavailable")
)

type registrationTokenRecord struct {
	UserID     string
	SecretHash [32]byte
	CreatedAt  int64
	ExpiresAt  int64
}

type registrationTokenStore struct {
	redis *redis.Client
	now   func() time.Time
}

func newRegistrationTokenStore(redisClient *redis.Client, now func() time.Time) *registrationTokenStore {
	if now == nil {
		now = time.Now
	}
	return &registrationTokenStore{redis: redisClient, now: now}
}

func (s *registrationTokenStore) key(tokenID string) string {
	return registrationKeyPrefix + ":" + tokenID
}

func (s *registrationTokenStore) Save(
	ctx context.Context,
	tokenID string,
	record *registrationTokenRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeRegistrationTokenRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(tokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRegistrationBackend, err)
	}

	return nil
}

// Consume looks up, checks, and deletes the token in one optimistic
// transaction. Once a consumption attempt has read the record it is
// removed on every outcome, so a token can never be presented twice.
func (s *registrationTokenStore) Consume(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
) (*registrationTokenRecord, error) {
	const maxRetries = 4
	key := s.key(tokenID)

	for i := 0; i < maxRetries; i++ {
		var matched *registrationTokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRegistrationTokenRecord(data)
			if err != nil {
				return err
			}

			if s.now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errRegistrationExpired
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errRegistrationNotFound
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errRegistrationNotFound
			case errors.Is(err, errRegistrationNotFound), errors.Is(err, errRegistrationExpired):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errRegistrationBackend, err)
			}
		}

		return matched, nil
	}

	return nil, errRegistrationNotFound
}

func mapRegistrationStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errRegistrationNotFound):
		return ErrRegistrationTokenNotFound
	case errors.Is(err, errRegistrationExpired):
		return ErrRegistrationTokenExpired
	case errors.Is(err, errRegistrationBackend):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func encodeRegistrationTokenRecord(record *registrationTokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(registrationRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("registration record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeRegistrationTokenRecord(data []byte) (*registrationTokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != registrationRecordVersionV1 {
		return nil, errors.New("invalid registration record version")
	}

	record := &registrationTokenRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}

	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
