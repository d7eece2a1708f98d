package credentials

import (
	"context"
)

// LoginResult is returned after a successful password login.
type LoginResult struct {
	Principal *Principal
	Token     string
	Claims    *JWTClaims
	Session   *Session
}

// Auther handles password logins.
type Auther struct {
	provider *PrincipalProvider
	tokens   *TokenService
	sessions *SessionManager
	activity ActivitySink
	logger   Logger
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(provider *PrincipalProvider, tokens *TokenService, sessions *SessionManager) *Auther {
	return &Auther{
		provider: provider,
		tokens:   tokens,
		sessions: sessions,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

// Login verifies the password, issues a bearer token and records a session.
func (s *Auther) Login(ctx context.Context, kind PrincipalKind, email, password string, meta SessionMetadata) (*LoginResult, error) {
	p, err := s.provider.VerifyIdentity(ctx, kind, email, password)
	if err != nil {
		s.logger.Debug("login failed for %s: %v", NormalizeEmail(email), err)
		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Kind:      kind,
			Metadata:  map[string]any{"email": NormalizeEmail(email)},
		})
		return nil, err
	}

	token, claims, err := s.tokens.Generate(ctx, NewIdentityFromPrincipal(p), nil)
	if err != nil {
		return nil, internalError(err, "failed to issue bearer token")
	}

	session, err := s.sessions.RecordSession(ctx, p, token, claims, meta, ChannelPassword)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Principal: p, Token: token, Claims: claims, Session: session}, nil
}

// SessionFromToken validates a session token for kind.
func (s *Auther) SessionFromToken(kind PrincipalKind, token string) (*JWTClaims, error) {
	return s.tokens.ValidateSession(kind, token)
}
