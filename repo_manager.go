package credentials

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// BunStore implements CredentialStore on top of bun.
type BunStore struct {
	db         *bun.DB
	principals *principals
	clients    repository.Repository[*Client]
	codes      repository.Repository[*AuthorizationCode]
	sessions   repository.Repository[*Session]
	logger     Logger
	now        func() time.Time
}

var _ CredentialStore = (*BunStore)(nil)

// StoreOption configures a BunStore.
type StoreOption func(*BunStore)

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *BunStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreClock overrides the clock used for updated_at.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *BunStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBunStore wires the repositories on db.
func NewBunStore(db *bun.DB, opts ...StoreOption) *BunStore {
	s := &BunStore{
		db:         db,
		principals: newPrincipalsRepository(db),
		clients:    newClientsRepository(db),
		codes:      newCodesRepository(db),
		sessions:   newSessionsRepository(db),
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *BunStore) Validate() error {
	if s.db == nil {
		return errors.New("store database should be initialized")
	}
	if s.principals == nil {
		return errors.New("repository principals should be initialized")
	}
	if s.clients == nil || s.codes == nil || s.sessions == nil {
		return errors.New("repositories clients, codes and sessions should be initialized")
	}
	return nil
}

func (s *BunStore) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

func (s *BunStore) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return s.db.RunInTx(ctx, opts, f)
	}
}

// Migrate applies the embedded SQL migrations.
func (s *BunStore) Migrate(ctx context.Context) error {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(GetMigrationsFS()); err != nil {
		return internalError(err, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(s.db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return internalError(err, "failed to init migrator")
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return internalError(err, "failed to run migrations")
	}

	if group.IsZero() {
		s.logger.Debug("migrations: database is up to date")
	} else {
		s.logger.Info("migrations: applied %s", group)
	}
	return nil
}

func (s *BunStore) FindByEmail(ctx context.Context, kind PrincipalKind, email string) (*Principal, error) {
	return s.principals.findByEmail(ctx, s.db, kind, email)
}

func (s *BunStore) FindByID(ctx context.Context, kind PrincipalKind, id string) (*Principal, error) {
	return s.principals.findByID(ctx, s.db, kind, id)
}

func (s *BunStore) FindBySecret(ctx context.Context, kind PrincipalKind, op OperationKind, stored string) (*Principal, error) {
	return s.principals.findBySecret(ctx, s.db, kind, op, stored)
}

// CreatePrincipal inserts p after checking the email is free for its kind.
func (s *BunStore) CreatePrincipal(ctx context.Context, p *Principal) (*Principal, error) {
	var created *Principal
	err := s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = s.principals.create(ctx, tx, p, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *BunStore) Save(ctx context.Context, p *Principal, opts ...SaveOption) error {
	return s.principals.save(ctx, s.db, p, s.now(), ResolveSaveOptions(opts...))
}

// DeletePrincipal removes the principal, its sessions and its authorization
// codes in one transaction.
func (s *BunStore) DeletePrincipal(ctx context.Context, kind PrincipalKind, id string) error {
	return s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.principals.remove(ctx, tx, kind, id)
	})
}

func (s *BunStore) FindClient(ctx context.Context, clientID string) (*Client, error) {
	return findClient(ctx, s.clients, clientID)
}

func (s *BunStore) CreateClient(ctx context.Context, c *Client) (*Client, error) {
	return createClient(ctx, s.clients, c, s.now())
}

func (s *BunStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	return saveAuthorizationCode(ctx, s.codes, code)
}

func (s *BunStore) FindAuthorizationCode(ctx context.Context, codeHash string) (*AuthorizationCode, error) {
	return findAuthorizationCode(ctx, s.codes, codeHash)
}

func (s *BunStore) ConsumeAuthorizationCode(ctx context.Context, codeHash, clientID string, at time.Time) error {
	return consumeAuthorizationCode(ctx, s.db, codeHash, clientID, at)
}

func (s *BunStore) RecordSession(ctx context.Context, session *Session) error {
	return recordSession(ctx, s.sessions, session)
}

func (s *BunStore) ListSessions(ctx context.Context, kind PrincipalKind, principalID string) ([]*Session, error) {
	return listSessions(ctx, s.db, kind, principalID)
}
