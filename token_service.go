package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const defaultTokenTTL = time.Hour

// TokenService signs and validates HS256 bearer tokens. Each principal kind
// has its own signing key.
type TokenService struct {
	keys      map[PrincipalKind][]byte
	ttl       time.Duration
	issuer    string
	logger    Logger
	decorator ClaimsDecorator
	now       func() time.Time
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the clock used for iat/exp and validation.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithClaimsDecorator sets a decorator invoked before signing.
func WithClaimsDecorator(d ClaimsDecorator) TokenServiceOption {
	return func(ts *TokenService) {
		ts.decorator = d
	}
}

// WithTokenLogger overrides the logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance. A zero ttl uses one
// hour.
func NewTokenService(keys map[PrincipalKind][]byte, ttl time.Duration, issuer string, opts ...TokenServiceOption) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	copied := make(map[PrincipalKind][]byte, len(keys))
	for kind, key := range keys {
		copied[kind] = append([]byte(nil), key...)
	}
	ts := &TokenService{
		keys:   copied,
		ttl:    ttl,
		issuer: issuer,
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// NewTokenServiceFromConfig reads keys, issuer and TTL from cfg.
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) *TokenService {
	keys := map[PrincipalKind][]byte{
		KindUser:  []byte(cfg.GetSigningKey(KindUser)),
		KindAdmin: []byte(cfg.GetSigningKey(KindAdmin)),
	}
	return NewTokenService(keys, cfg.GetTokenExpiration(), cfg.GetIssuer(), opts...)
}

// TTL returns the default bearer token lifetime.
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Generate issues a session token for identity. extra is merged into the
// metadata claim.
func (ts *TokenService) Generate(ctx context.Context, identity Identity, extra map[string]any) (string, *JWTClaims, error) {
	return ts.mint(ctx, identity, extra, TokenUseSession, ScopedTokenOptions{})
}

func (ts *TokenService) mint(ctx context.Context, identity Identity, extra map[string]any, use TokenUse, opts ScopedTokenOptions) (string, *JWTClaims, error) {
	if identity == nil {
		return "", nil, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = ts.ttl
	}
	if ttl < 0 {
		return "", nil, goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:      identity.ID(),
		Email:    identity.Email(),
		Kind:     identity.Kind(),
		UserRole: identity.Role(),
		Use:      use,
	}
	if len(opts.Audience) > 0 {
		claims.Audience = append(jwt.ClaimStrings(nil), opts.Audience...)
	}
	if len(extra) > 0 {
		claims.Metadata = make(map[string]any, len(extra))
		for k, v := range extra {
			claims.Metadata[k] = v
		}
	}

	ensureTokenID(&claims.RegisteredClaims)

	if err := decorateClaims(ctx, ts.decorator, identity, claims); err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "claims decorator failed")
	}

	token, err := ts.SignClaims(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// SignClaims signs claims with the key of claims.Kind.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	key, err := ts.keyFor(claims.Kind)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses a token using only the key for kind.
func (ts *TokenService) Validate(kind PrincipalKind, tokenString string) (*JWTClaims, error) {
	key, err := ts.keyFor(kind)
	if err != nil {
		return nil, err
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service: unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Kind != kind {
		ts.logger.Warn("token service: %s token presented as %s", claims.Kind, kind)
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// ValidateSession accepts only first party session tokens of kind. Access
// tokens minted for a relying party are rejected.
func (ts *TokenService) ValidateSession(kind PrincipalKind, tokenString string) (*JWTClaims, error) {
	claims, err := ts.Validate(kind, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Use != TokenUseSession || len(claims.Audience) > 0 {
		ts.logger.Warn("token service: %q token presented as a session", claims.Use)
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ValidateAccess accepts only access tokens of kind that carry an audience.
func (ts *TokenService) ValidateAccess(kind PrincipalKind, tokenString string) (*JWTClaims, error) {
	claims, err := ts.Validate(kind, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Use != TokenUseAccess || len(claims.Audience) == 0 {
		ts.logger.Warn("token service: %q token presented as an access token", claims.Use)
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ValidatorFor returns a session TokenValidator bound to kind.
func (ts *TokenService) ValidatorFor(kind PrincipalKind) TokenValidator {
	return TokenValidatorFunc(func(tokenString string) (AuthClaims, error) {
		claims, err := ts.ValidateSession(kind, tokenString)
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}

func (ts *TokenService) keyFor(kind PrincipalKind) ([]byte, error) {
	key := ts.keys[kind]
	if len(key) == 0 {
		return nil, goerrors.New(fmt.Sprintf("no signing key configured for %q", kind), goerrors.CategoryInternal).
			WithTextCode(TextCodeServerError)
	}
	return key, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
