package credentials

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSecretRequested  ActivityEventType = "credentials.secret.requested"
	ActivityEventSecretConfirmed  ActivityEventType = "credentials.secret.confirmed"
	ActivityEventSecretRejected   ActivityEventType = "credentials.secret.rejected"
	ActivityEventLoginSuccess     ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure     ActivityEventType = "auth.login.failure"
	ActivityEventTwoFactorToggled ActivityEventType = "auth.two_factor.toggled"
	ActivityEventRegistered       ActivityEventType = "auth.registered"
	ActivityEventProfileUpdated   ActivityEventType = "auth.profile.updated"
	ActivityEventAccountDeleted   ActivityEventType = "auth.account.deleted"
	ActivityEventCodeIssued       ActivityEventType = "oidc.code.issued"
	ActivityEventCodeExchanged    ActivityEventType = "oidc.code.exchanged"
	ActivityEventCodeRejected     ActivityEventType = "oidc.code.rejected"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	PrincipalID string
	Kind        PrincipalKind
	Operation   OperationKind
	ClientID    string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is best effort, sink failures are logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink error for %s: %v", event.EventType, err)
	}
}
