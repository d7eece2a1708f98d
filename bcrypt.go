package credentials

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var errEmptySecret = errors.New("secret must not be empty")

// HashPassword will generate a bcrypt hash of secret with the given cost
func HashPassword(secret string, cost int) (string, error) {
	if secret == "" {
		return "", errEmptySecret
	}

	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// secret matches the hashed value
func ComparePasswordAndHash(secret, hash string) error {
	if hash == "" {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}
