package credentials

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func newSessionsRepository(db *bun.DB) repository.Repository[*Session] {
	return repository.NewRepository[*Session](db, repository.ModelHandlers[*Session]{
		NewRecord: func() *Session { return &Session{} },
		GetID: func(s *Session) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Session, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})
}

func recordSession(ctx context.Context, repo repository.Repository[*Session], s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if _, err := repo.Create(ctx, s); err != nil {
		return internalError(err, "failed to record session")
	}
	return nil
}

func listSessions(ctx context.Context, idb bun.IDB, kind PrincipalKind, principalID string) ([]*Session, error) {
	uid, err := uuid.Parse(principalID)
	if err != nil {
		return nil, ErrPrincipalNotFound
	}

	var sessions []*Session
	err = idb.NewSelect().
		Model(&sessions).
		Where("?TableAlias.principal_kind = ?", kind).
		Where("?TableAlias.principal_id = ?", uid).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list sessions")
	}
	return sessions, nil
}
