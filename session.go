package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionManager writes the audit trail of issued bearer tokens.
type SessionManager struct {
	store    SessionStore
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewSessionManager creates a manager writing to store.
func NewSessionManager(store SessionStore) *SessionManager {
	return &SessionManager{
		store:    store,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithLogger overrides the logger used by the manager.
func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithClock overrides the clock used for created_at.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
	}
	return m
}

// WithActivitySink sets the sink notified of successful logins.
func (m *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	m.activity = normalizeActivitySink(sink)
	return m
}

// RecordSession persists an audit row for bearer. Only a fingerprint of the
// token is kept.
func (m *SessionManager) RecordSession(ctx context.Context, p *Principal, bearer string, claims *JWTClaims, meta SessionMetadata, channel SessionChannel) (*Session, error) {
	if p == nil || bearer == "" {
		return nil, goerrors.New("principal and bearer token are required", goerrors.CategoryBadInput)
	}

	session := &Session{
		ID:            uuid.New(),
		PrincipalID:   p.ID,
		PrincipalKind: p.Kind,
		TokenHash:     Fingerprint(bearer),
		Channel:       channel,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		CreatedAt:     m.now().UTC(),
	}
	if claims != nil {
		session.TokenID = claims.ID
		if exp := claims.Expires(); !exp.IsZero() {
			exp = exp.UTC()
			session.ExpiresAt = &exp
		}
	}

	if err := m.store.RecordSession(ctx, session); err != nil {
		m.logger.Error("session manager: failed to record session for %s: %v", p.ID, err)
		return nil, err
	}

	recordActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType:   ActivityEventLoginSuccess,
		PrincipalID: p.ID.String(),
		Kind:        p.Kind,
		Metadata: map[string]any{
			"session_id": session.ID.String(),
			"channel":    string(channel),
		},
		OccurredAt: session.CreatedAt,
	})

	return session, nil
}

// List returns the sessions recorded for a principal, oldest first.
func (m *SessionManager) List(ctx context.Context, kind PrincipalKind, principalID string) ([]*Session, error) {
	return m.store.ListSessions(ctx, kind, principalID)
}
