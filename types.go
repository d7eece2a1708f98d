package credentials

import (
	"context"
	"fmt"
	"time"
)

// Logger is the logging collaborator injected into every component.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// ResolveLogger picks the explicit logger, then a named logger from the
// provider, then the default stdout logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if logger != nil {
		return provider, logger
	}
	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return provider, l
		}
	}
	return provider, defLogger{}
}

// Identity is the public view of an authenticated principal.
type Identity interface {
	ID() string
	Email() string
	Name() string
	Role() string
	Kind() PrincipalKind
}

// Config holds the options consumed by the credential core.
type Config interface {
	GetSigningKey(kind PrincipalKind) string
	GetIssuer() string
	GetTokenExpiration() time.Duration
	GetSecretTTL(op OperationKind) time.Duration
	GetAuthorizationCodeTTL() time.Duration
	GetCookieName() string
	GetContextKey() string
	GetAPIVersion() string
	IsProduction() bool
	GetAdminRegistrationKey() string
}

// Notification carries a plaintext secret to the delivery collaborator.
type Notification struct {
	Kind      PrincipalKind
	Operation OperationKind
	Email     string
	Name      string
	Secret    string
	ExpiresAt time.Time
}

// Notifier delivers secrets out of band. Delivery itself is not part of this
// package.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

// LogNotifier writes notifications to a logger. Useful in development.
type LogNotifier struct {
	Logger Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, msg Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("notify %s %s for %s: %s (expires %s)",
		msg.Kind, msg.Operation, msg.Email, msg.Secret, msg.ExpiresAt.Format(time.RFC3339))
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] CREDS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] CREDS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] CREDS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] CREDS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
