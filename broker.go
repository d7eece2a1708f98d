package credentials

import (
	"context"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	TokenTypeBearer            = "Bearer"

	defaultCodeTTL   = 60 * time.Second
	defaultAccessTTL = time.Hour
)

// AuthorizeRequest is the input of the authorization endpoint. Subject is
// the authenticated principal, nil when there is no session.
type AuthorizeRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	State        string
	Subject      *Subject
}

// AuthorizeResult carries the redirect the caller should follow.
type AuthorizeResult struct {
	RedirectURL string
	Code        string
	ExpiresAt   time.Time
}

// TokenRequest is the input of the token endpoint.
type TokenRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	GrantType    string
	Kind         PrincipalKind
}

// TokenResponse is returned by a successful exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// UserInfo holds the public profile returned to relying parties.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

// BrokerStore is what the broker needs from persistence.
type BrokerStore interface {
	PrincipalStore
	ClientStore
	CodeStore
}

// AuthorizationBroker implements the authorization code flow for registered
// clients.
type AuthorizationBroker struct {
	store     BrokerStore
	tokens    *TokenService
	hasher    *Hasher
	activity  ActivitySink
	logger    Logger
	tracer    trace.Tracer
	codeTTL   time.Duration
	accessTTL time.Duration
	now       func() time.Time
}

// BrokerOption configures an AuthorizationBroker.
type BrokerOption func(*AuthorizationBroker)

func WithBrokerClock(now func() time.Time) BrokerOption {
	return func(b *AuthorizationBroker) {
		if now != nil {
			b.now = now
		}
	}
}

func WithBrokerHasher(h *Hasher) BrokerOption {
	return func(b *AuthorizationBroker) {
		if h != nil {
			b.hasher = h
		}
	}
}

func WithBrokerActivitySink(sink ActivitySink) BrokerOption {
	return func(b *AuthorizationBroker) {
		b.activity = normalizeActivitySink(sink)
	}
}

func WithBrokerLogger(logger Logger) BrokerOption {
	return func(b *AuthorizationBroker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithBrokerTracer(tracer trace.Tracer) BrokerOption {
	return func(b *AuthorizationBroker) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// WithCodeTTL overrides the authorization code lifetime (60s by default).
func WithCodeTTL(ttl time.Duration) BrokerOption {
	return func(b *AuthorizationBroker) {
		if ttl > 0 {
			b.codeTTL = ttl
		}
	}
}

// WithAccessTokenTTL overrides the access token lifetime (1h by default).
func WithAccessTokenTTL(ttl time.Duration) BrokerOption {
	return func(b *AuthorizationBroker) {
		if ttl > 0 {
			b.accessTTL = ttl
		}
	}
}

// NewAuthorizationBroker creates a broker.
func NewAuthorizationBroker(store BrokerStore, tokens *TokenService, opts ...BrokerOption) *AuthorizationBroker {
	b := &AuthorizationBroker{
		store:     store,
		tokens:    tokens,
		hasher:    NewHasher(),
		activity:  noopActivitySink{},
		logger:    defLogger{},
		tracer:    otel.Tracer(tracerName),
		codeTTL:   defaultCodeTTL,
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// RegisterClient stores a client with a bcrypt hash of secret.
func (b *AuthorizationBroker) RegisterClient(ctx context.Context, client *Client, secret string) (*Client, error) {
	if client == nil || strings.TrimSpace(client.ClientID) == "" || secret == "" {
		return nil, goerrors.New("client_id and client_secret are required", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	for _, uri := range client.RedirectURIs {
		if _, err := parseRedirect(uri); err != nil {
			return nil, ErrInvalidRedirect
		}
	}

	hash, err := b.hasher.HashPassword(ctx, secret)
	if err != nil {
		return nil, internalError(err, "failed to hash client secret")
	}
	client.ClientSecretHash = hash
	return b.store.CreateClient(ctx, client)
}

// Authorize issues a single use code for the subject and returns the
// redirect carrying it. State is echoed back untouched.
func (b *AuthorizationBroker) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	ctx, span := b.tracer.Start(ctx, "credentials.Authorize", trace.WithAttributes(
		attribute.String("client_id", req.ClientID),
	))
	defer span.End()

	res, err := b.authorize(ctx, req)
	endSpan(span, err)
	return res, err
}

func (b *AuthorizationBroker) authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ResponseType != ResponseTypeCode {
		return nil, ErrUnsupportedResponseType
	}
	if req.ClientID == "" || req.RedirectURI == "" {
		return nil, goerrors.New("client_id and redirect_uri are required", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if req.Subject == nil || req.Subject.ID == "" {
		return nil, ErrUnauthorized
	}

	client, err := b.activeClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.AllowsRedirect(req.RedirectURI) {
		return nil, ErrInvalidRedirect
	}

	principal, err := b.store.FindByID(ctx, req.Subject.Kind, req.Subject.ID)
	if err != nil {
		if goerrors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	code, err := NewAuthorizationCode()
	if err != nil {
		return nil, internalError(err, "failed to generate authorization code")
	}

	now := b.now().UTC()
	record := &AuthorizationCode{
		CodeHash:      Fingerprint(code),
		ClientID:      client.ClientID,
		PrincipalID:   principal.ID,
		PrincipalKind: principal.Kind,
		RedirectURI:   req.RedirectURI,
		IssuedAt:      now,
		ExpiresAt:     now.Add(b.codeTTL),
	}
	if err := b.store.SaveAuthorizationCode(ctx, record); err != nil {
		return nil, err
	}

	redirect, err := buildRedirect(req.RedirectURI, code, req.State)
	if err != nil {
		return nil, ErrInvalidRedirect
	}

	recordActivity(ctx, b.activity, b.logger, ActivityEvent{
		EventType:   ActivityEventCodeIssued,
		PrincipalID: principal.ID.String(),
		Kind:        principal.Kind,
		ClientID:    client.ClientID,
		OccurredAt:  now,
	})

	return &AuthorizeResult{RedirectURL: redirect, Code: code, ExpiresAt: record.ExpiresAt}, nil
}

// Token exchanges an authorization code. The code is consumed by a single
// conditional update, so at most one exchange succeeds.
func (b *AuthorizationBroker) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	ctx, span := b.tracer.Start(ctx, "credentials.Token", trace.WithAttributes(
		attribute.String("client_id", req.ClientID),
	))
	defer span.End()

	res, err := b.token(ctx, req)
	endSpan(span, err)
	return res, err
}

func (b *AuthorizationBroker) token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType
	}
	if req.Code == "" || req.ClientID == "" || req.RedirectURI == "" {
		return nil, goerrors.New("code, client_id and redirect_uri are required", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	client, err := b.activeClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	ok, err := b.hasher.Verify(ctx, req.ClientSecret, client.ClientSecretHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidClient
	}

	if !client.AllowsRedirect(req.RedirectURI) {
		return nil, ErrInvalidRedirect
	}

	codeHash := Fingerprint(req.Code)
	code, err := b.store.FindAuthorizationCode(ctx, codeHash)
	if err != nil {
		if goerrors.Is(err, ErrNotFound) {
			return nil, b.rejectCode(ctx, req.ClientID, "unknown")
		}
		return nil, err
	}

	now := b.now().UTC()
	switch {
	case code.Consumed():
		return nil, b.rejectCode(ctx, req.ClientID, "consumed")
	case !code.ExpiresAt.After(now):
		return nil, b.rejectCode(ctx, req.ClientID, "expired")
	case code.ClientID != client.ClientID:
		return nil, b.rejectCode(ctx, req.ClientID, "client mismatch")
	case code.RedirectURI != req.RedirectURI:
		return nil, b.rejectCode(ctx, req.ClientID, "redirect mismatch")
	}

	if req.Kind != "" && code.PrincipalKind != req.Kind {
		return nil, b.rejectCode(ctx, req.ClientID, "kind mismatch")
	}

	if err := b.store.ConsumeAuthorizationCode(ctx, codeHash, client.ClientID, now); err != nil {
		if goerrors.Is(err, ErrInvalidGrant) {
			return nil, b.rejectCode(ctx, req.ClientID, "lost race")
		}
		return nil, err
	}

	principal, err := b.store.FindByID(ctx, code.PrincipalKind, code.PrincipalID.String())
	if err != nil {
		if goerrors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	token, claims, err := b.tokens.MintAccessToken(ctx, NewIdentityFromPrincipal(principal), ScopedTokenOptions{
		TTL:      b.accessTTL,
		Audience: []string{client.ClientID},
	})
	if err != nil {
		return nil, internalError(err, "failed to mint access token")
	}

	recordActivity(ctx, b.activity, b.logger, ActivityEvent{
		EventType:   ActivityEventCodeExchanged,
		PrincipalID: principal.ID.String(),
		Kind:        principal.Kind,
		ClientID:    client.ClientID,
		Metadata:    map[string]any{"jti": claims.ID},
		OccurredAt:  now,
	})

	return &TokenResponse{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(b.accessTTL / time.Second),
	}, nil
}

// UserInfo validates bearer as an access token of kind issued to an active
// client and returns the public profile of its subject.
func (b *AuthorizationBroker) UserInfo(ctx context.Context, kind PrincipalKind, bearer string) (*UserInfo, error) {
	if strings.TrimSpace(bearer) == "" {
		return nil, ErrUnauthorized
	}

	claims, err := b.tokens.ValidateAccess(kind, bearer)
	if err != nil {
		return nil, err
	}

	for _, clientID := range claims.Audience {
		if _, err := b.activeClient(ctx, clientID); err != nil {
			if IsKind(err, TextCodeInvalidClient) {
				return nil, ErrUnauthorized
			}
			return nil, err
		}
	}

	principal, err := b.store.FindByID(ctx, kind, claims.UserID())
	if err != nil {
		if goerrors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	return &UserInfo{
		ID:    principal.ID.String(),
		Email: principal.Email,
		Name:  principal.Name,
		Role:  string(principal.Role),
	}, nil
}

func (b *AuthorizationBroker) activeClient(ctx context.Context, clientID string) (*Client, error) {
	client, err := b.store.FindClient(ctx, clientID)
	if err != nil {
		if goerrors.Is(err, ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !client.Active {
		return nil, ErrInvalidClient
	}
	return client, nil
}

func (b *AuthorizationBroker) rejectCode(ctx context.Context, clientID, reason string) error {
	recordActivity(ctx, b.activity, b.logger, ActivityEvent{
		EventType:  ActivityEventCodeRejected,
		ClientID:   clientID,
		Metadata:   map[string]any{"reason": reason},
		OccurredAt: b.now(),
	})
	b.logger.Debug("broker: rejected code for client %s: %s", clientID, reason)
	return ErrInvalidGrant
}

func parseRedirect(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, goerrors.New("redirect uri must be absolute", goerrors.CategoryValidation)
	}
	return u, nil
}

func buildRedirect(redirectURI, code, state string) (string, error) {
	u, err := parseRedirect(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
