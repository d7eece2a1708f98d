package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ScopedTokenOptions controls how MintAccessToken issues tokens for a relying
// party.
type ScopedTokenOptions struct {
	// TTL overrides the default token expiration. Zero uses TokenService defaults.
	TTL time.Duration
	// Audience is usually the client_id of the relying party.
	Audience []string
}

// MintAccessToken issues an access token for identity, scoped to the given
// audience. An access token never opens session routes.
func (ts *TokenService) MintAccessToken(ctx context.Context, identity Identity, opts ScopedTokenOptions) (string, *JWTClaims, error) {
	if len(opts.Audience) == 0 {
		return "", nil, goerrors.New("access tokens require an audience", goerrors.CategoryBadInput)
	}
	return ts.mint(ctx, identity, nil, TokenUseAccess, opts)
}
