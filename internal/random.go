package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const refreshTokenRawSize = 48

// NewRefreshToken returns an opaque refresh token: 48 random bytes,
// base64url without padding. The plaintext is returned to the caller
// exactly once; storage only ever sees its hash.
func NewRefreshToken() (string, error) {
	var raw [refreshTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashRefreshToken derives the storage key for a refresh token:
// lowercase hex SHA-256 of the presented string.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CheckRefreshTokenShape rejects tokens that cannot have been issued by
// this engine before any storage round trip.
func CheckRefreshTokenShape(token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return err
	}
	if len(raw) != refreshTokenRawSize {
		return errors.New("invalid refresh token size")
	}
	return nil
}
