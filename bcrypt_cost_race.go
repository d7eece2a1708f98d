//go:build race

package credentials

import "golang.org/x/crypto/bcrypt"

// Reduce cost for race-enabled builds so test suites can run with strict timeouts.
const (
	defaultPasswordCost = bcrypt.DefaultCost
	defaultOTPCost      = bcrypt.MinCost
)
