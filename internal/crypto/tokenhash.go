// Package crypto implements server-side token secret generation and hashing.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/blake2b"
)

const (
	secretLen    = 32 // 256 bits
	claimCodeLen = 8
)

// claimAlphabet omits look-alike characters (0/O, 1/I/L).
const claimAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewSecret returns a fresh URL-safe token secret.
func NewSecret() (string, error) {
	b, err := RandBytes(secretLen)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewClaimCode returns a short human-typeable code used to claim a token.
func NewClaimCode() (string, error) {
	b, err := RandBytes(claimCodeLen)
	if err != nil {
		return "", err
	}
	out := make([]byte, claimCodeLen)
	for i := range b {
		out[i] = claimAlphabet[int(b[i])%len(claimAlphabet)]
	}
	return string(out), nil
}

// Hasher computes keyed BLAKE2b-256 digests of token secrets.
type Hasher struct {
	pepper []byte
}

// NewHasher constructs a Hasher. The pepper may be empty and must not exceed 64 bytes.
func NewHasher(pepper []byte) (*Hasher, error) {
	if len(pepper) > blake2b.Size {
		return nil, errors.New("pepper longer than 64 bytes")
	}
	return &Hasher{pepper: append([]byte(nil), pepper...)}, nil
}

// Hash returns the deterministic digest of secret.
func (h *Hasher) Hash(secret string) []byte {
	d, err := blake2b.New256(h.pepper)
	if err != nil {
		// unreachable: key length checked in NewHasher
		panic(err)
	}
	d.Write([]byte(secret))
	return d.Sum(nil)
}

// Verify compares the digest of secret with expected in constant time.
func (h *Hasher) Verify(secret string, expected []byte) bool {
	return subtle.ConstantTimeCompare(h.Hash(secret), expected) == 1
}
