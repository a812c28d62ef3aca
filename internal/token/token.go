package token

import (
	"crypto/rand"
	"encoding/hex"
)

// Length is the exact length of an issued token: 32 random bytes, hex-encoded.
const Length = 64

// New returns a fresh bearer token with 256 bits of entropy.
// Uniqueness is enforced by the database; a collision would surface as a
// unique constraint violation, which callers may retry.
func New() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// ValidFormat reports whether s could have been produced by New.
// Used to reject malformed tokens before touching storage.
func ValidFormat(s string) bool {
	if len(s) != Length {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
