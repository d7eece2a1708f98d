package credentials

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/semaphore"
)

const defaultHashWorkers = 4

// Hasher runs bcrypt work on a bounded number of slots so a burst of logins
// cannot pin every CPU. Waiting for a slot honours ctx.
type Hasher struct {
	sem          *semaphore.Weighted
	passwordCost int
	otpCost      int
}

// HasherOption configures a Hasher.
type HasherOption func(*Hasher)

// WithHashWorkers sets the number of concurrent hashing slots.
func WithHashWorkers(n int) HasherOption {
	return func(h *Hasher) {
		if n > 0 {
			h.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithHashCosts overrides the bcrypt costs used for passwords and OTP codes.
func WithHashCosts(password, otp int) HasherOption {
	return func(h *Hasher) {
		if password > 0 {
			h.passwordCost = password
		}
		if otp > 0 {
			h.otpCost = otp
		}
	}
}

// NewHasher creates a hasher with the package defaults.
func NewHasher(opts ...HasherOption) *Hasher {
	h := &Hasher{
		sem:          semaphore.NewWeighted(defaultHashWorkers),
		passwordCost: defaultPasswordCost,
		otpCost:      defaultOTPCost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// HashPassword hashes a password.
func (h *Hasher) HashPassword(ctx context.Context, password string) (string, error) {
	return h.hash(ctx, password, h.passwordCost)
}

// HashOTP hashes a one time code.
func (h *Hasher) HashOTP(ctx context.Context, otp string) (string, error) {
	return h.hash(ctx, otp, h.otpCost)
}

// Verify reports whether secret matches hash. A mismatch returns false with a
// nil error; only a cancelled wait returns an error.
func (h *Hasher) Verify(ctx context.Context, secret, hash string) (bool, error) {
	var match bool
	err := h.run(ctx, func() error {
		match = ComparePasswordAndHash(secret, hash) == nil
		return nil
	})
	return match, err
}

func (h *Hasher) hash(ctx context.Context, secret string, cost int) (string, error) {
	var out string
	err := h.run(ctx, func() error {
		var err error
		out, err = HashPassword(secret, cost)
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (h *Hasher) run(ctx context.Context, fn func() error) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled waiting for hash worker")
	}
	defer h.sem.Release(1)
	return fn()
}
