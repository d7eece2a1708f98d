//go:build !race

package credentials

const (
	defaultPasswordCost = 12
	defaultOTPCost      = 10
)
