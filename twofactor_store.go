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
	twoFactorKeyPrefix       = "a2f"
	twoFactorRecordVersionV1 = 1
)

var (
	errTwoFactorNotFound = errors.New("two-factor code not found")
	errTwoFactorExpired  = errors.New("two-factor code expired")
	errTwoFactorMismatch = errors.New("two-factor code mismatch")
	errTwoFactorBackend  = errors.New("two-factor store unavailable")
)

type twoFactorCodeRecord struct {
	UserID    string
	CodeHash  [32]byte
	CreatedAt int64
	ExpiresAt int64
}

// twoFactorCodeStore keeps at most one active code per user. Each user has
// a single slot key derived from the email; writing the slot replaces any
// previous unused code in the same Redis SET, which is what makes the
// invalidate-then-insert of a new code one atomic unit.
type twoFactorCodeStore struct {
	redis *redis.Client
	now   func() time.Time
}

func newTwoFactorCodeStore(redisClient *redis.Client, now func() time.Time) *twoFactorCodeStore {
	if now == nil {
		now = time.Now
	}
	return &twoFactorCodeStore{redis: redisClient, now: now}
}

func (s *twoFactorCodeStore) key(email string) string {
	return twoFactorKeyPrefix + ":" + email
}

func (s *twoFactorCodeStore) Save(
	ctx context.Context,
	email string,
	record *twoFactorCodeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeTwoFactorCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errTwoFactorBackend, err)
	}

	return nil
}

// Consume verifies providedHash against the active code for email and, on
// match, retires the code inside the same optimistic transaction. Under
// concurrent submissions of the same code exactly one caller gets the
// record back; the rest observe not-found. A mismatch leaves the code in
// place so a typo does not burn it.
func (s *twoFactorCodeStore) Consume(
	ctx context.Context,
	email string,
	providedHash [32]byte,
) (*twoFactorCodeRecord, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var matched *twoFactorCodeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTwoFactorCodeRecord(data)
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
				return errTwoFactorExpired
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				return errTwoFactorMismatch
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
				return nil, errTwoFactorNotFound
			case errors.Is(err, errTwoFactorExpired), errors.Is(err, errTwoFactorMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errTwoFactorBackend, err)
			}
		}

		return matched, nil
	}

	return nil, errTwoFactorNotFound
}

func mapTwoFactorStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errTwoFactorNotFound),
		errors.Is(err, errTwoFactorExpired),
		errors.Is(err, errTwoFactorMismatch):
		return ErrInvalidCode
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func encodeTwoFactorCodeRecord(record *twoFactorCodeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(twoFactorRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("two-factor record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeTwoFactorCodeRecord(data []byte) (*twoFactorCodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != twoFactorRecordVersionV1 {
		return nil, errors.New("invalid two-factor record version")
	}

	record := &twoFactorCodeRecord{}

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

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
