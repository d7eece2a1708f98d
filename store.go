package credentials

import (
	"context"
	"time"
)

// PrincipalStore persists users and admins.
type PrincipalStore interface {
	FindByEmail(ctx context.Context, kind PrincipalKind, email string) (*Principal, error)
	FindByID(ctx context.Context, kind PrincipalKind, id string) (*Principal, error)
	// FindBySecret resolves the principal whose op slot holds stored.
	FindBySecret(ctx context.Context, kind PrincipalKind, op OperationKind, stored string) (*Principal, error)
	CreatePrincipal(ctx context.Context, p *Principal) (*Principal, error)
	// Save is the only mutation path for existing principals.
	Save(ctx context.Context, p *Principal, opts ...SaveOption) error
	// DeletePrincipal removes the principal together with its sessions and
	// authorization codes.
	DeletePrincipal(ctx context.Context, kind PrincipalKind, id string) error
}

// ClientStore resolves relying parties.
type ClientStore interface {
	FindClient(ctx context.Context, clientID string) (*Client, error)
	CreateClient(ctx context.Context, c *Client) (*Client, error)
}

// CodeStore keeps authorization codes.
type CodeStore interface {
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	FindAuthorizationCode(ctx context.Context, codeHash string) (*AuthorizationCode, error)
	// ConsumeAuthorizationCode marks the code consumed only if it is still
	// unconsumed and bound to clientID. It returns ErrInvalidGrant otherwise.
	ConsumeAuthorizationCode(ctx context.Context, codeHash, clientID string, at time.Time) error
}

// SessionStore keeps the session audit trail.
type SessionStore interface {
	RecordSession(ctx context.Context, s *Session) error
	ListSessions(ctx context.Context, kind PrincipalKind, principalID string) ([]*Session, error)
}

// CredentialStore is the full persistence surface.
type CredentialStore interface {
	PrincipalStore
	ClientStore
	CodeStore
	SessionStore
}

const (
	ColumnIsVerified       = "is_verified"
	ColumnPasswordHash     = "password_hash"
	ColumnTwoFactorEnabled = "two_factor_enabled"
)

// SaveOptions is the resolved form of a Save call.
type SaveOptions struct {
	// Columns restricts the write. Empty means every mutable column.
	Columns []string
	// Conditional makes the write apply only while the ExpectOp slot still
	// holds ExpectValue in the store.
	Conditional bool
	ExpectOp    OperationKind
	ExpectValue string
}

// SaveOption configures a Save call.
type SaveOption func(*SaveOptions)

// WithColumns restricts the write to the given columns.
func WithColumns(columns ...string) SaveOption {
	return func(o *SaveOptions) {
		o.Columns = append(o.Columns, columns...)
	}
}

// WithSlotColumns restricts the write to the slot columns of ops.
func WithSlotColumns(ops ...OperationKind) SaveOption {
	return func(o *SaveOptions) {
		for _, op := range ops {
			if cols, ok := slotColumnsByOp[op]; ok {
				o.Columns = append(o.Columns, cols.token, cols.expires)
			}
		}
	}
}

// IfSlotMatches makes the write conditional on the op slot still holding
// expected. A store that finds a different value returns ErrStaleSecret.
func IfSlotMatches(op OperationKind, expected string) SaveOption {
	return func(o *SaveOptions) {
		o.Conditional = true
		o.ExpectOp = op
		o.ExpectValue = expected
	}
}

// ResolveSaveOptions applies opts in order.
func ResolveSaveOptions(opts ...SaveOption) SaveOptions {
	var o SaveOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
