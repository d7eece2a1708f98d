package credentials_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	credentials "github.com/goliatone/go-credentials"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

var (
	userKey  = []byte("user-signing-key-for-tests")
	adminKey = []byte("admin-signing-key-for-tests")
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// outbox captures notifications instead of delivering them.
type outbox struct {
	mu   sync.Mutex
	sent []credentials.Notification
	fail error
}

func (o *outbox) Notify(_ context.Context, n credentials.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	return o.fail
}

func (o *outbox) Last(t *testing.T, email string, op credentials.OperationKind) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Email == email && o.sent[i].Operation == op {
			return o.sent[i].Secret
		}
	}
	t.Fatalf("no %s notification for %s", op, email)
	return ""
}

func (o *outbox) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type fixture struct {
	ctx      context.Context
	db       *bun.DB
	store    *credentials.BunStore
	hasher   *credentials.Hasher
	tokens   *credentials.TokenService
	clock    *testClock
	outbox   *outbox
	sessions *credentials.SessionManager
	machine  *credentials.VerificationMachine
	broker   *credentials.AuthorizationBroker
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []credentials.ActivityEvent
}

func (l *eventLog) Record(_ context.Context, e credentials.ActivityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) Types() []credentials.ActivityEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]credentials.ActivityEventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a new database
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	clock := newTestClock()
	db := newTestDB(t)

	store := credentials.NewBunStore(db,
		credentials.WithStoreLogger(testLogger{}),
		credentials.WithStoreClock(clock.Now),
	)
	require.NoError(t, store.Migrate(ctx))

	hasher := credentials.NewHasher(credentials.WithHashCosts(bcrypt.MinCost, bcrypt.MinCost))
	tokens := credentials.NewTokenService(map[credentials.PrincipalKind][]byte{
		credentials.KindUser:  userKey,
		credentials.KindAdmin: adminKey,
	}, time.Hour, "go-credentials-test",
		credentials.WithTokenClock(clock.Now),
		credentials.WithTokenLogger(testLogger{}),
	)

	events := &eventLog{}
	box := &outbox{}

	sessions := credentials.NewSessionManager(store).
		WithClock(clock.Now).
		WithLogger(testLogger{}).
		WithActivitySink(events)

	machine := credentials.NewVerificationMachine(store, tokens,
		credentials.WithVerificationClock(clock.Now),
		credentials.WithHasher(hasher),
		credentials.WithNotifier(box),
		credentials.WithSessionManager(sessions),
		credentials.WithVerificationActivitySink(events),
		credentials.WithVerificationLogger(testLogger{}),
	)

	broker := credentials.NewAuthorizationBroker(store, tokens,
		credentials.WithBrokerClock(clock.Now),
		credentials.WithBrokerHasher(hasher),
		credentials.WithBrokerActivitySink(events),
		credentials.WithBrokerLogger(testLogger{}),
	)

	return &fixture{
		ctx:      ctx,
		db:       db,
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		clock:    clock,
		outbox:   box,
		sessions: sessions,
		machine:  machine,
		broker:   broker,
		events:   events,
	}
}

func (f *fixture) createPrincipal(t *testing.T, kind credentials.PrincipalKind, email, password string, verified bool) *credentials.Principal {
	t.Helper()

	hash, err := f.hasher.HashPassword(f.ctx, password)
	require.NoError(t, err)

	p := &credentials.Principal{
		Kind:         kind,
		Name:         "Pepe Rone",
		Email:        email,
		PasswordHash: hash,
	}
	if kind == credentials.KindAdmin {
		p.Role = credentials.RoleAdmin
	}

	created, err := f.store.CreatePrincipal(f.ctx, p)
	require.NoError(t, err)

	if verified {
		created.IsVerified = true
		require.NoError(t, f.store.Save(f.ctx, created, credentials.WithColumns(credentials.ColumnIsVerified)))
	}
	return created
}

func (f *fixture) reload(t *testing.T, p *credentials.Principal) *credentials.Principal {
	t.Helper()
	fresh, err := f.store.FindByID(f.ctx, p.Kind, p.ID.String())
	require.NoError(t, err)
	return fresh
}

func (f *fixture) registerClient(t *testing.T, clientID, secret string, redirects ...string) *credentials.Client {
	t.Helper()
	client, err := f.broker.RegisterClient(f.ctx, &credentials.Client{
		ClientID:     clientID,
		Name:         "Test App",
		RedirectURIs: redirects,
		Active:       true,
	}, secret)
	require.NoError(t, err)
	return client
}
