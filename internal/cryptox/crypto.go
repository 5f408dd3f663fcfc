// Package cryptox holds the hashing primitives used by the identity store
// and the submission outbox.
package cryptox

import (
	"crypto/subtle"
	"encoding/hex"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the length in bytes of salts produced by NewSalt.
const SaltSize = 16

func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// HashPassword derives a 32-byte argon2id hash of password with the given salt.
func HashPassword(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// VerifyPassword reports whether password hashes to expected under salt.
// The comparison runs in constant time.
func VerifyPassword(password, salt, expected []byte) bool {
	actual := HashPassword(password, salt)
	defer common.WipeByteArray(actual)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

// Fingerprint returns the hex-encoded BLAKE3 digest of the given parts.
// Each part is length-prefixed so that ("ab","c") and ("a","bc") differ.
func Fingerprint(parts ...[]byte) string {
	h := blake3.New()
	var prefix [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range prefix {
			prefix[i] = byte(n >> (8 * i))
		}
		_, _ = h.Write(prefix[:])
		_, _ = h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
