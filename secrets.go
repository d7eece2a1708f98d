package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

const (
	opaqueTokenBytes = 32
	otpMin           = 100000
	otpSpan          = 900000
)

// NewOpaqueToken returns 256 random bits, hex encoded. Used for email
// verification and password reset links.
func NewOpaqueToken() (string, error) {
	return randomHex(rand.Reader, opaqueTokenBytes)
}

// NewAuthorizationCode returns a random authorization code.
func NewAuthorizationCode() (string, error) {
	return randomHex(rand.Reader, opaqueTokenBytes)
}

// NewNumericOTP returns a six digit code drawn uniformly from
// [100000, 999999].
func NewNumericOTP() (string, error) {
	return numericOTP(rand.Reader)
}

// Fingerprint is the stored form of a secret that is looked up by value.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomHex(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func numericOTP(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(otpSpan))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
