package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// TokenID is the public half of a registration token: the store key the
// record is filed under.
type TokenID [16]byte

const (
	registrationSecretSize   = 32
	registrationTokenRawSize = 16 + registrationSecretSize
)

func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

func (t TokenID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

func ParseTokenID(tokenID string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.DecodeString(tokenID)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid token id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewRegistrationSecret returns the unguessable half of a registration
// token. 32 bytes of entropy; only its SHA-256 digest is ever stored.
func NewRegistrationSecret() ([registrationSecretSize]byte, error) {
	var secret [registrationSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashRegistrationSecret(secret [registrationSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// HashBytes is the digest used for 2FA codes. Codes are compared via their
// SHA-256 digests with a constant-time compare at the store.
func HashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// EncodeRegistrationToken packs id and secret into the opaque string handed
// to the user: base64url(id ‖ secret), 48 raw bytes.
func EncodeRegistrationToken(id TokenID, secret [registrationSecretSize]byte) string {
	var raw [registrationTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeRegistrationToken(token string) (TokenID, [registrationSecretSize]byte, error) {
	var (
		id     TokenID
		secret [registrationSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != registrationTokenRawSize {
		return id, secret, errors.New("invalid registration token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id, secret, nil
}

// NewCode generates a uniformly random zero-padded numeric code. Each digit
// is drawn independently from crypto/rand so the result covers the full
// 10^digits space without modulo bias.
func NewCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
