package credentials

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-credentials"

// DefaultSecretTTLs are the lifetimes of each secret kind.
var DefaultSecretTTLs = map[OperationKind]time.Duration{
	OpEmailVerification: 24 * time.Hour,
	OpPasswordReset:     time.Hour,
	OpTwoFactorOTP:      5 * time.Minute,
	OpLoginOTP:          5 * time.Minute,
}

// RequestResult describes a secret that was issued and persisted.
type RequestResult struct {
	Principal *Principal
	Operation OperationKind
	ExpiresAt time.Time
	// DeliveryErr is set when the notifier failed. The secret stays valid.
	DeliveryErr error
}

// ConfirmInput carries what the caller presented. Token kinds only use
// Secret, OTP kinds resolve the principal by Email.
type ConfirmInput struct {
	Kind            PrincipalKind
	Operation       OperationKind
	Email           string
	Secret          string
	NewPassword     string
	ConfirmPassword string
	Metadata        SessionMetadata
}

// ConfirmResult is returned by a successful confirmation. Token, Claims and
// Session are only set for login OTP.
type ConfirmResult struct {
	Principal *Principal
	Operation OperationKind
	Token     string
	Claims    *JWTClaims
	Session   *Session
}

// VerificationMachine runs the request/confirm protocol shared by every
// secret kind.
type VerificationMachine struct {
	store    PrincipalStore
	tokens   *TokenService
	hasher   *Hasher
	sessions *SessionManager
	notifier Notifier
	activity ActivitySink
	logger   Logger
	tracer   trace.Tracer
	ttls     map[OperationKind]time.Duration
	now      func() time.Time
}

// VerificationOption customizes machine construction.
type VerificationOption func(*VerificationMachine)

// WithVerificationClock injects a custom clock (useful for tests).
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(m *VerificationMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithSecretTTL overrides the lifetime of one secret kind.
func WithSecretTTL(op OperationKind, ttl time.Duration) VerificationOption {
	return func(m *VerificationMachine) {
		if ttl > 0 && op.IsValid() {
			m.ttls[op] = ttl
		}
	}
}

// WithNotifier sets the delivery collaborator.
func WithNotifier(n Notifier) VerificationOption {
	return func(m *VerificationMachine) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithHasher overrides the hasher.
func WithHasher(h *Hasher) VerificationOption {
	return func(m *VerificationMachine) {
		if h != nil {
			m.hasher = h
		}
	}
}

// WithSessionManager sets the manager used after a login OTP succeeds.
func WithSessionManager(s *SessionManager) VerificationOption {
	return func(m *VerificationMachine) {
		if s != nil {
			m.sessions = s
		}
	}
}

// WithVerificationActivitySink sets the ActivitySink used to publish events.
func WithVerificationActivitySink(sink ActivitySink) VerificationOption {
	return func(m *VerificationMachine) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithVerificationLogger overrides the logger.
func WithVerificationLogger(logger Logger) VerificationOption {
	return func(m *VerificationMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithVerificationTracer overrides the tracer. Defaults to the global
// provider.
func WithVerificationTracer(tracer trace.Tracer) VerificationOption {
	return func(m *VerificationMachine) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// NewVerificationMachine creates a machine. When store also records sessions
// a SessionManager is wired on it.
func NewVerificationMachine(store PrincipalStore, tokens *TokenService, opts ...VerificationOption) *VerificationMachine {
	m := &VerificationMachine{
		store:    store,
		tokens:   tokens,
		hasher:   NewHasher(),
		notifier: LogNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		tracer:   otel.Tracer(tracerName),
		ttls:     make(map[OperationKind]time.Duration, len(DefaultSecretTTLs)),
		now:      time.Now,
	}
	for op, ttl := range DefaultSecretTTLs {
		m.ttls[op] = ttl
	}
	if ss, ok := store.(SessionStore); ok {
		m.sessions = NewSessionManager(ss)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// TTL returns the lifetime of op secrets.
func (m *VerificationMachine) TTL(op OperationKind) time.Duration {
	return m.ttls[op]
}

// Request issues a fresh secret for op, replacing any pending one.
func (m *VerificationMachine) Request(ctx context.Context, kind PrincipalKind, op OperationKind, email string) (*RequestResult, error) {
	ctx, span := m.tracer.Start(ctx, "credentials.Request", trace.WithAttributes(
		attribute.String("principal.kind", string(kind)),
		attribute.String("operation", string(op)),
	))
	defer span.End()

	res, err := m.request(ctx, kind, op, email)
	endSpan(span, err)
	return res, err
}

func (m *VerificationMachine) request(ctx context.Context, kind PrincipalKind, op OperationKind, email string) (*RequestResult, error) {
	if !op.IsValid() {
		return nil, ErrValidation
	}
	if NormalizeEmail(email) == "" {
		return nil, goerrors.New("email is required", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	p, err := m.store.FindByEmail(ctx, kind, email)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpEmailVerification:
		if p.IsVerified {
			return nil, ErrAlreadyVerified
		}
	case OpLoginOTP:
		if !p.IsVerified {
			return nil, ErrEmailNotVerified
		}
	}

	plain, stored, err := m.newSecret(ctx, op)
	if err != nil {
		return nil, internalError(err, "failed to generate secret")
	}

	expiresAt := m.now().Add(m.TTL(op)).UTC()
	p.SetSlot(op, stored, expiresAt)

	if err := m.store.Save(ctx, p, WithSlotColumns(op)); err != nil {
		return nil, err
	}

	result := &RequestResult{Principal: p, Operation: op, ExpiresAt: expiresAt}

	if err := m.notifier.Notify(ctx, Notification{
		Kind:      kind,
		Operation: op,
		Email:     p.Email,
		Name:      p.Name,
		Secret:    plain,
		ExpiresAt: expiresAt,
	}); err != nil {
		m.logger.Error("verification: delivery of %s for %s failed: %v", op, p.ID, err)
		result.DeliveryErr = err
	}

	recordActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType:   ActivityEventSecretRequested,
		PrincipalID: p.ID.String(),
		Kind:        kind,
		Operation:   op,
		Metadata:    map[string]any{"expires_at": expiresAt},
		OccurredAt:  m.now(),
	})

	return result, nil
}

func (m *VerificationMachine) newSecret(ctx context.Context, op OperationKind) (plain, stored string, err error) {
	if !op.UsesOTP() {
		plain, err = NewOpaqueToken()
		if err != nil {
			return "", "", err
		}
		return plain, Fingerprint(plain), nil
	}

	plain, err = NewNumericOTP()
	if err != nil {
		return "", "", err
	}
	stored, err = m.hasher.HashOTP(ctx, plain)
	if err != nil {
		return "", "", err
	}
	return plain, stored, nil
}

// Confirm consumes a pending secret and applies its side effect. Wrong,
// expired and missing secrets all return ErrInvalidOrExpired.
func (m *VerificationMachine) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	ctx, span := m.tracer.Start(ctx, "credentials.Confirm", trace.WithAttributes(
		attribute.String("principal.kind", string(in.Kind)),
		attribute.String("operation", string(in.Operation)),
	))
	defer span.End()

	res, err := m.confirm(ctx, in)
	endSpan(span, err)
	return res, err
}

func (m *VerificationMachine) confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	op := in.Operation
	if !op.IsValid() {
		return nil, ErrValidation
	}

	if op == OpPasswordReset {
		if in.NewPassword == "" || in.ConfirmPassword == "" {
			return nil, goerrors.New("new password and confirmation are required", goerrors.CategoryValidation).
				WithTextCode(TextCodeValidation).
				WithCode(goerrors.CodeBadRequest)
		}
		if in.NewPassword != in.ConfirmPassword {
			return nil, ErrPasswordMismatch
		}
	}

	secret := strings.TrimSpace(in.Secret)
	if op.UsesOTP() {
		if secret == "" || NormalizeEmail(in.Email) == "" {
			return nil, ErrEmailAndOTPRequired
		}
	} else if secret == "" {
		return nil, ErrTokenRequired
	}

	p, err := m.resolve(ctx, in.Kind, op, in.Email, secret)
	if err != nil {
		return nil, err
	}

	slot := p.Slot(op)
	if !slot.IsLive(m.now()) {
		return nil, m.reject(ctx, p, op, "expired or empty")
	}

	if op.UsesOTP() {
		ok, err := m.hasher.Verify(ctx, secret, slot.Value)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, m.reject(ctx, p, op, "mismatch")
		}
	} else if subtle.ConstantTimeCompare([]byte(Fingerprint(secret)), []byte(slot.Value)) != 1 {
		return nil, m.reject(ctx, p, op, "mismatch")
	}

	var extra []string
	switch op {
	case OpEmailVerification:
		p.IsVerified = true
		extra = append(extra, ColumnIsVerified)
	case OpPasswordReset:
		hash, err := m.hasher.HashPassword(ctx, in.NewPassword)
		if err != nil {
			return nil, internalError(err, "failed to hash password")
		}
		p.PasswordHash = hash
		extra = append(extra, ColumnPasswordHash)
	}
	p.ClearSlot(op)

	err = m.store.Save(ctx, p, WithSlotColumns(op), WithColumns(extra...), IfSlotMatches(op, slot.Value))
	if err != nil {
		if goerrors.Is(err, ErrStaleSecret) {
			return nil, m.reject(ctx, p, op, "already consumed")
		}
		return nil, err
	}

	recordActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType:   ActivityEventSecretConfirmed,
		PrincipalID: p.ID.String(),
		Kind:        p.Kind,
		Operation:   op,
		OccurredAt:  m.now(),
	})

	result := &ConfirmResult{Principal: p, Operation: op}
	if op != OpLoginOTP {
		return result, nil
	}

	if err := m.issueSession(ctx, p, in.Metadata, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *VerificationMachine) resolve(ctx context.Context, kind PrincipalKind, op OperationKind, email, secret string) (*Principal, error) {
	if op.UsesOTP() {
		return m.store.FindByEmail(ctx, kind, email)
	}

	p, err := m.store.FindBySecret(ctx, kind, op, Fingerprint(secret))
	if err != nil {
		// a consumed or superseded token has no owner anymore
		if goerrors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidOrExpired
		}
		return nil, err
	}
	return p, nil
}

func (m *VerificationMachine) issueSession(ctx context.Context, p *Principal, meta SessionMetadata, result *ConfirmResult) error {
	if m.tokens == nil || m.sessions == nil {
		return internalError(goerrors.New("token service and session manager are required for login", goerrors.CategoryInternal),
			"login OTP confirmed without session wiring")
	}

	token, claims, err := m.tokens.Generate(ctx, NewIdentityFromPrincipal(p), nil)
	if err != nil {
		return internalError(err, "failed to issue bearer token")
	}

	session, err := m.sessions.RecordSession(ctx, p, token, claims, meta, ChannelLoginOTP)
	if err != nil {
		return err
	}

	result.Token = token
	result.Claims = claims
	result.Session = session
	return nil
}

func (m *VerificationMachine) reject(ctx context.Context, p *Principal, op OperationKind, reason string) error {
	recordActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType:   ActivityEventSecretRejected,
		PrincipalID: p.ID.String(),
		Kind:        p.Kind,
		Operation:   op,
		Metadata:    map[string]any{"reason": reason},
		OccurredAt:  m.now(),
	})
	m.logger.Debug("verification: rejected %s for %s: %s", op, p.ID, reason)
	return ErrInvalidOrExpired
}

// SetTwoFactor toggles two factor authentication for the authenticated
// subject.
func (m *VerificationMachine) SetTwoFactor(ctx context.Context, subject *Subject, enabled bool) (*Principal, error) {
	if subject == nil || subject.ID == "" {
		return nil, ErrUnauthorized
	}

	p, err := m.store.FindByID(ctx, subject.Kind, subject.ID)
	if err != nil {
		return nil, err
	}

	p.TwoFactorEnabled = enabled
	if err := m.store.Save(ctx, p, WithColumns(ColumnTwoFactorEnabled)); err != nil {
		return nil, err
	}

	recordActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType:   ActivityEventTwoFactorToggled,
		PrincipalID: p.ID.String(),
		Kind:        p.Kind,
		Metadata:    map[string]any{"enabled": enabled},
		OccurredAt:  m.now(),
	})
	return p, nil
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, ErrorKind(err))
}
