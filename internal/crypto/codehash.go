// Package crypto hashes one-time verification codes and generates secrets.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Codes live for minutes, so memory is kept modest.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 19 * 1024 // 19 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

const saltLen = 16

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewCode returns a uniformly random decimal code of the given length,
// zero-padded.
func NewCode(digits int) (string, error) {
	out := make([]byte, digits)
	ten := big.NewInt(10)
	for i := range out {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}

// NewToken returns a URL-safe random token with n bytes of entropy.
func NewToken(n int) (string, error) {
	b, err := RandBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashedCode is a salted Argon2id digest of a code.
type HashedCode struct {
	Salt []byte
	Hash []byte
}

// HashCode salts and hashes code.
func HashCode(code string) (HashedCode, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return HashedCode{}, err
	}
	return HashedCode{Salt: salt, Hash: hash([]byte(code), salt)}, nil
}

// Matches reports whether code hashes to h, in constant time.
func (h HashedCode) Matches(code string) bool {
	if len(h.Hash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(hash([]byte(code), h.Salt), h.Hash) == 1
}

func hash(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
