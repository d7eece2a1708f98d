package credentials

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the claims carried by a validated bearer token
type AuthClaims interface {
	Subject() string
	UserID() string
	EmailAddress() string
	PrincipalKind() PrincipalKind
	Role() string
	TokenUse() TokenUse
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenUse separates first party session tokens from access tokens minted
// for a relying party.
type TokenUse string

const (
	TokenUseSession TokenUse = "session"
	TokenUseAccess  TokenUse = "access"
)

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string         `json:"uid,omitempty"`
	Email    string         `json:"email,omitempty"`
	Kind     PrincipalKind  `json:"kind,omitempty"`
	UserRole string         `json:"role,omitempty"`
	Use      TokenUse       `json:"token_use,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"` // extension payload
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the principal ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

func (c *JWTClaims) EmailAddress() string {
	return c.Email
}

func (c *JWTClaims) PrincipalKind() PrincipalKind {
	return c.Kind
}

// Role returns the admin role, empty for users
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// TokenUse reports whether the token is a session or an access token
func (c *JWTClaims) TokenUse() TokenUse {
	return c.Use
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ClaimsDecorator can add extension claims (Metadata) before a token is
// signed. Identity and registered claims are restored after it runs.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, identity Identity, claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, identity Identity, claims *JWTClaims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, identity Identity, claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, identity, claims)
}

func decorateClaims(ctx context.Context, d ClaimsDecorator, identity Identity, claims *JWTClaims) error {
	if d == nil {
		return nil
	}
	registered := claims.RegisteredClaims
	uid, email, kind, role, use := claims.UID, claims.Email, claims.Kind, claims.UserRole, claims.Use

	if err := d.Decorate(ctx, identity, claims); err != nil {
		return err
	}

	claims.RegisteredClaims = registered
	claims.UID, claims.Email, claims.Kind, claims.UserRole, claims.Use = uid, email, kind, role, use
	return nil
}
