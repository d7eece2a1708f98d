package credentials

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// PrincipalProvider verifies password credentials.
type PrincipalProvider struct {
	store    PrincipalStore
	hasher   *Hasher
	logger   Logger
	provider LoggerProvider
}

// NewPrincipalProvider will create a new PrincipalProvider
func NewPrincipalProvider(store PrincipalStore, hasher *Hasher) *PrincipalProvider {
	if hasher == nil {
		hasher = NewHasher()
	}
	provider, logger := ResolveLogger("credentials.principal_provider", nil, nil)
	return &PrincipalProvider{
		store:    store,
		hasher:   hasher,
		logger:   logger,
		provider: provider,
	}
}

func (u *PrincipalProvider) WithLogger(l Logger) *PrincipalProvider {
	u.provider, u.logger = ResolveLogger("credentials.principal_provider", u.provider, l)
	return u
}

// WithLoggerProvider overrides the logger provider used by the principal provider.
func (u *PrincipalProvider) WithLoggerProvider(provider LoggerProvider) *PrincipalProvider {
	u.provider, u.logger = ResolveLogger("credentials.principal_provider", provider, nil)
	return u
}

// VerifyIdentity will find the principal and compare the password. Unknown
// emails and wrong passwords return the same error.
func (u *PrincipalProvider) VerifyIdentity(ctx context.Context, kind PrincipalKind, email, password string) (*Principal, error) {
	p, err := u.store.FindByEmail(ctx, kind, email)
	if err != nil {
		if goerrors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve principal during verification")
	}

	ok, err := u.hasher.Verify(ctx, password, p.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		u.logger.Debug("principal provider: password mismatch for %s", p.ID)
		return nil, ErrInvalidCredentials
	}
	return p, nil
}
