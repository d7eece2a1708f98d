package credentials

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func newCodesRepository(db *bun.DB) repository.Repository[*AuthorizationCode] {
	return repository.NewRepository[*AuthorizationCode](db, repository.ModelHandlers[*AuthorizationCode]{
		NewRecord: func() *AuthorizationCode { return &AuthorizationCode{} },
		GetID: func(a *AuthorizationCode) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *AuthorizationCode, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code_hash"
		},
	})
}

func saveAuthorizationCode(ctx context.Context, repo repository.Repository[*AuthorizationCode], code *AuthorizationCode) error {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	code.IssuedAt = code.IssuedAt.UTC()
	code.ExpiresAt = code.ExpiresAt.UTC()
	if _, err := repo.Create(ctx, code); err != nil {
		return internalError(err, "failed to persist authorization code")
	}
	return nil
}

func findAuthorizationCode(ctx context.Context, repo repository.Repository[*AuthorizationCode], codeHash string) (*AuthorizationCode, error) {
	if codeHash == "" {
		return nil, ErrNotFound
	}
	code, err := repo.GetByIdentifier(ctx, codeHash)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, internalError(err, "failed to load authorization code")
	}
	return code, nil
}

// consumeAuthorizationCode marks the code consumed in one statement that also
// requires it to be unconsumed, bound to clientID and unexpired at at.
func consumeAuthorizationCode(ctx context.Context, idb bun.IDB, codeHash, clientID string, at time.Time) error {
	at = at.UTC()
	res, err := idb.NewUpdate().
		Model((*AuthorizationCode)(nil)).
		Set("consumed_at = ?", at).
		Where("code_hash = ?", codeHash).
		Where("client_id = ?", clientID).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", at).
		Exec(ctx)
	if err != nil {
		return internalError(err, "failed to consume authorization code")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return internalError(err, "failed to read affected rows")
	}
	if affected != 1 {
		return ErrInvalidGrant
	}
	return nil
}
