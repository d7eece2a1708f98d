package credentials

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var principalMutableColumns = []string{
	"name",
	"email",
	ColumnPasswordHash,
	ColumnIsVerified,
	ColumnTwoFactorEnabled,
	"date_of_birth",
	"emergency_contact",
	"role",
	"capabilities",
	"email_verification_token",
	"email_verification_expires",
	"password_reset_token",
	"password_reset_expires",
	"two_factor_otp_hash",
	"two_factor_otp_expires",
	"login_otp_hash",
	"login_otp_expires",
}

type principals struct {
	repository.Repository[*Principal]
}

func newPrincipalsRepository(db *bun.DB) *principals {
	repo := repository.NewRepository[*Principal](db, repository.ModelHandlers[*Principal]{
		NewRecord: func() *Principal { return &Principal{} },
		GetID: func(p *Principal) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Principal, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})
	return &principals{Repository: repo}
}

func (r *principals) findByEmail(ctx context.Context, idb bun.IDB, kind PrincipalKind, email string) (*Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrPrincipalNotFound
	}
	return r.findOne(ctx, idb, kind, "email", email)
}

func (r *principals) findByID(ctx context.Context, idb bun.IDB, kind PrincipalKind, id string) (*Principal, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrPrincipalNotFound
	}
	return r.findOne(ctx, idb, kind, "id", uid)
}

func (r *principals) findBySecret(ctx context.Context, idb bun.IDB, kind PrincipalKind, op OperationKind, stored string) (*Principal, error) {
	cols, ok := slotColumnsByOp[op]
	if !ok || stored == "" {
		return nil, ErrPrincipalNotFound
	}
	return r.findOne(ctx, idb, kind, cols.token, stored)
}

func (r *principals) findOne(ctx context.Context, idb bun.IDB, kind PrincipalKind, column string, value any) (*Principal, error) {
	record := &Principal{}
	err := idb.NewSelect().
		Model(record).
		Where("?TableAlias.kind = ?", kind).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrPrincipalNotFound
		}
		return nil, internalError(err, "failed to load principal")
	}
	return record, nil
}

func (r *principals) create(ctx context.Context, idb bun.IDB, p *Principal, now time.Time) (*Principal, error) {
	if p == nil {
		return nil, goerrors.New("principal is required", goerrors.CategoryBadInput)
	}

	p.Email = NormalizeEmail(p.Email)
	if _, err := r.findByEmail(ctx, idb, p.Kind, p.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !goerrors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	ts := now.UTC()
	p.CreatedAt = &ts
	p.UpdatedAt = &ts

	created, err := r.Repository.CreateTx(ctx, idb, p)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, internalError(err, "failed to create principal")
	}
	return created, nil
}

// save writes p by primary key. With a condition the UPDATE also matches the
// expected slot value, so two concurrent consumers cannot both succeed.
func (r *principals) save(ctx context.Context, idb bun.IDB, p *Principal, now time.Time, opts SaveOptions) error {
	if p == nil || p.ID == uuid.Nil {
		return goerrors.New("principal with id is required", goerrors.CategoryBadInput)
	}

	columns := opts.Columns
	if len(columns) == 0 {
		columns = principalMutableColumns
	}
	ts := now.UTC()
	p.UpdatedAt = &ts
	columns = append(append([]string(nil), columns...), "updated_at")

	q := idb.NewUpdate().
		Model(p).
		Column(columns...).
		WherePK()

	if opts.Conditional {
		cols, ok := slotColumnsByOp[opts.ExpectOp]
		if !ok || opts.ExpectValue == "" {
			return ErrStaleSecret
		}
		q = q.Where("? = ?", bun.Ident(cols.token), opts.ExpectValue)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return internalError(err, "failed to save principal")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return internalError(err, "failed to read affected rows")
	}
	if affected != 1 {
		if opts.Conditional {
			return ErrStaleSecret
		}
		return ErrPrincipalNotFound
	}
	return nil
}

// remove deletes the principal row and everything bound to it. Callers run
// it inside a transaction.
func (r *principals) remove(ctx context.Context, idb bun.IDB, kind PrincipalKind, id string) error {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ErrPrincipalNotFound
	}

	res, err := idb.NewDelete().
		Model((*Principal)(nil)).
		Where("kind = ?", kind).
		Where("id = ?", uid).
		Exec(ctx)
	if err != nil {
		return internalError(err, "failed to delete principal")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return internalError(err, "failed to read affected rows")
	}
	if affected != 1 {
		return ErrPrincipalNotFound
	}

	if _, err := idb.NewDelete().
		Model((*Session)(nil)).
		Where("principal_kind = ?", kind).
		Where("principal_id = ?", uid).
		Exec(ctx); err != nil {
		return internalError(err, "failed to delete sessions")
	}

	if _, err := idb.NewDelete().
		Model((*AuthorizationCode)(nil)).
		Where("principal_kind = ?", kind).
		Where("principal_id = ?", uid).
		Exec(ctx); err != nil {
		return internalError(err, "failed to delete authorization codes")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "23505")
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
