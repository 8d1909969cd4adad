package access

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/secrets"
)

// HashMagicString produces a bcrypt hash suitable for magic_string_hash.
func HashMagicString(value string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyMagicString checks the operator's input against the configured gate
// secret. A configured hash takes precedence over a plaintext value.
func VerifyMagicString(s secrets.Secrets, input string) bool {
	if input == "" {
		return false
	}
	if s.MagicStringHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.MagicStringHash), []byte(input)) == nil
	}
	if s.MagicString == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.MagicString), []byte(input)) == 1
}
