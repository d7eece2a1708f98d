package credentials_test

import (
	"testing"
	"time"

	credentials "github.com/goliatone/go-credentials"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateAndFindPrincipal(t *testing.T) {
	f := newFixture(t)

	created := f.createPrincipal(t, credentials.KindUser, "  Pepe.Rone@Example.com ", "password123", false)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "pepe.rone@example.com", created.Email)
	require.NotNil(t, created.CreatedAt)

	byEmail, err := f.store.FindByEmail(f.ctx, credentials.KindUser, "PEPE.RONE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := f.store.FindByID(f.ctx, credentials.KindUser, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)

	// same email under the other kind is a different principal space
	_, err = f.store.FindByEmail(f.ctx, credentials.KindAdmin, "pepe.rone@example.com")
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))

	_, err = f.store.FindByID(f.ctx, credentials.KindUser, "not-a-uuid")
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))
}

func TestStoreEmailUniquePerKind(t *testing.T) {
	f := newFixture(t)

	f.createPrincipal(t, credentials.KindUser, "dup@example.com", "password123", false)

	_, err := f.store.CreatePrincipal(f.ctx, &credentials.Principal{
		Kind:  credentials.KindUser,
		Name:  "Other",
		Email: "DUP@example.com",
	})
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, credentials.ErrEmailTaken))
	assert.Equal(t, credentials.TextCodeConflict, credentials.ErrorKind(err))

	admin := f.createPrincipal(t, credentials.KindAdmin, "dup@example.com", "password123", false)
	assert.Equal(t, credentials.KindAdmin, admin.Kind)
}

func TestStoreSaveRestrictedColumns(t *testing.T) {
	f := newFixture(t)
	p := f.createPrincipal(t, credentials.KindUser, "cols@example.com", "password123", false)

	p.Name = "Changed"
	p.TwoFactorEnabled = true
	require.NoError(t, f.store.Save(f.ctx, p, credentials.WithColumns(credentials.ColumnTwoFactorEnabled)))

	fresh := f.reload(t, p)
	assert.True(t, fresh.TwoFactorEnabled)
	assert.Equal(t, "Pepe Rone", fresh.Name)
}

func TestStoreSlotRoundTrip(t *testing.T) {
	f := newFixture(t)
	p := f.createPrincipal(t, credentials.KindUser, "slot@example.com", "password123", false)

	expires := f.clock.Now().Add(time.Hour)
	p.SetSlot(credentials.OpPasswordReset, credentials.Fingerprint("reset-token"), expires)
	require.NoError(t, f.store.Save(f.ctx, p, credentials.WithSlotColumns(credentials.OpPasswordReset)))

	found, err := f.store.FindBySecret(f.ctx, credentials.KindUser, credentials.OpPasswordReset, credentials.Fingerprint("reset-token"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	slot := found.Slot(credentials.OpPasswordReset)
	assert.Equal(t, credentials.Fingerprint("reset-token"), slot.Value)
	require.NotNil(t, slot.ExpiresAt)
	assert.True(t, expires.Equal(*slot.ExpiresAt))
	assert.True(t, slot.IsLive(f.clock.Now()))
	assert.False(t, slot.IsLive(expires))

	// other slots are untouched
	assert.True(t, found.Slot(credentials.OpEmailVerification).IsEmpty())

	_, err = f.store.FindBySecret(f.ctx, credentials.KindUser, credentials.OpEmailVerification, credentials.Fingerprint("reset-token"))
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))
}

func TestStoreConditionalSave(t *testing.T) {
	f := newFixture(t)
	p := f.createPrincipal(t, credentials.KindUser, "cond@example.com", "password123", false)

	p.SetSlot(credentials.OpLoginOTP, "stored-a", f.clock.Now().Add(time.Minute))
	require.NoError(t, f.store.Save(f.ctx, p, credentials.WithSlotColumns(credentials.OpLoginOTP)))

	first := f.reload(t, p)
	second := f.reload(t, p)

	first.ClearSlot(credentials.OpLoginOTP)
	require.NoError(t, f.store.Save(f.ctx, first,
		credentials.WithSlotColumns(credentials.OpLoginOTP),
		credentials.IfSlotMatches(credentials.OpLoginOTP, "stored-a"),
	))

	second.ClearSlot(credentials.OpLoginOTP)
	err := f.store.Save(f.ctx, second,
		credentials.WithSlotColumns(credentials.OpLoginOTP),
		credentials.IfSlotMatches(credentials.OpLoginOTP, "stored-a"),
	)
	assert.True(t, goerrors.Is(err, credentials.ErrStaleSecret))
}

func TestStoreSaveMissingPrincipal(t *testing.T) {
	f := newFixture(t)

	err := f.store.Save(f.ctx, &credentials.Principal{ID: uuid.New(), Kind: credentials.KindUser, Name: "x", Email: "x@example.com"})
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))
}

func TestStoreClients(t *testing.T) {
	f := newFixture(t)

	created, err := f.store.CreateClient(f.ctx, &credentials.Client{
		ClientID:         "app",
		ClientSecretHash: "hash",
		Name:             "App",
		Description:      "An app",
		LogoURL:          "https://app.example.com/logo.png",
		RedirectURIs:     []string{"https://app.example.com/cb"},
		Active:           true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	found, err := f.store.FindClient(f.ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com/cb"}, found.RedirectURIs)
	assert.Equal(t, "An app", found.Description)
	assert.True(t, found.AllowsRedirect("https://app.example.com/cb"))
	assert.False(t, found.AllowsRedirect("https://app.example.com/cb/"))

	_, err = f.store.CreateClient(f.ctx, &credentials.Client{ClientID: "app", ClientSecretHash: "hash", Name: "Again"})
	assert.Equal(t, credentials.TextCodeConflict, credentials.ErrorKind(err))

	_, err = f.store.FindClient(f.ctx, "missing")
	assert.True(t, goerrors.Is(err, credentials.ErrNotFound))
}

func TestStoreAuthorizationCodeConsumedOnce(t *testing.T) {
	f := newFixture(t)
	p := f.createPrincipal(t, credentials.KindUser, "code@example.com", "password123", true)

	now := f.clock.Now()
	code := &credentials.AuthorizationCode{
		CodeHash:      credentials.Fingerprint("code"),
		ClientID:      "app",
		PrincipalID:   p.ID,
		PrincipalKind: p.Kind,
		RedirectURI:   "https://app.example.com/cb",
		IssuedAt:      now,
		ExpiresAt:     now.Add(time.Minute),
	}
	require.NoError(t, f.store.SaveAuthorizationCode(f.ctx, code))

	found, err := f.store.FindAuthorizationCode(f.ctx, credentials.Fingerprint("code"))
	require.NoError(t, err)
	assert.False(t, found.Consumed())
	assert.Equal(t, p.ID, found.PrincipalID)

	err = f.store.ConsumeAuthorizationCode(f.ctx, credentials.Fingerprint("code"), "other", now)
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidGrant))

	require.NoError(t, f.store.ConsumeAuthorizationCode(f.ctx, credentials.Fingerprint("code"), "app", now))

	err = f.store.ConsumeAuthorizationCode(f.ctx, credentials.Fingerprint("code"), "app", now)
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidGrant))

	found, err = f.store.FindAuthorizationCode(f.ctx, credentials.Fingerprint("code"))
	require.NoError(t, err)
	assert.True(t, found.Consumed())

	_, err = f.store.FindAuthorizationCode(f.ctx, credentials.Fingerprint("missing"))
	assert.True(t, goerrors.Is(err, credentials.ErrNotFound))
}

func TestStoreAuthorizationCodeNotConsumedAfterExpiry(t *testing.T) {
	f := newFixture(t)
	p := f.createPrincipal(t, credentials.KindUser, "late@example.com", "password123", true)

	now := f.clock.Now()
	require.NoError(t, f.store.SaveAuthorizationCode(f.ctx, &credentials.AuthorizationCode{
		CodeHash:      credentials.Fingerprint("late"),
		ClientID:      "app",
		PrincipalID:   p.ID,
		PrincipalKind: p.Kind,
		RedirectURI:   "https://app.example.com/cb",
		IssuedAt:      now,
		ExpiresAt:     now.Add(time.Minute),
	}))

	err := f.store.ConsumeAuthorizationCode(f.ctx, credentials.Fingerprint("late"), "app", now.Add(time.Minute))
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidGrant))

	err = f.store.ConsumeAuthorizationCode(f.ctx, credentials.Fingerprint("late"), "app", now.Add(2*time.Minute))
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidGrant))

	found, err := f.store.FindAuthorizationCode(f.ctx, credentials.Fingerprint("late"))
	require.NoError(t, err)
	assert.False(t, found.Consumed())

	require.NoError(t, f.store.ConsumeAuthorizationCode(f.ctx, credentials.Fingerprint("late"), "app", now.Add(59*time.Second)))
}

func TestStoreDeletePrincipalCascades(t *testing.T) {
	f := newFixture(t)
	p := f.createPrincipal(t, credentials.KindUser, "gone@example.com", "password123", true)
	keep := f.createPrincipal(t, credentials.KindUser, "keep@example.com", "password123", true)

	now := f.clock.Now()
	for i, owner := range []*credentials.Principal{p, keep} {
		_, err := f.sessions.RecordSession(f.ctx, owner, "bearer-"+owner.Email, nil, credentials.SessionMetadata{}, credentials.ChannelPassword)
		require.NoError(t, err)

		require.NoError(t, f.store.SaveAuthorizationCode(f.ctx, &credentials.AuthorizationCode{
			CodeHash:      credentials.Fingerprint("code-" + string(rune('a'+i))),
			ClientID:      "app",
			PrincipalID:   owner.ID,
			PrincipalKind: owner.Kind,
			RedirectURI:   "https://app.example.com/cb",
			IssuedAt:      now,
			ExpiresAt:     now.Add(time.Minute),
		}))
	}

	// the kind is part of the key
	err := f.store.DeletePrincipal(f.ctx, credentials.KindAdmin, p.ID.String())
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))

	require.NoError(t, f.store.DeletePrincipal(f.ctx, credentials.KindUser, p.ID.String()))

	_, err = f.store.FindByID(f.ctx, credentials.KindUser, p.ID.String())
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))

	sessions, err := f.store.ListSessions(f.ctx, credentials.KindUser, p.ID.String())
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = f.store.FindAuthorizationCode(f.ctx, credentials.Fingerprint("code-a"))
	assert.True(t, goerrors.Is(err, credentials.ErrNotFound))

	sessions, err = f.store.ListSessions(f.ctx, credentials.KindUser, keep.ID.String())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	_, err = f.store.FindAuthorizationCode(f.ctx, credentials.Fingerprint("code-b"))
	require.NoError(t, err)

	err = f.store.DeletePrincipal(f.ctx, credentials.KindUser, p.ID.String())
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))

	err = f.store.DeletePrincipal(f.ctx, credentials.KindUser, "not-a-uuid")
	assert.True(t, goerrors.Is(err, credentials.ErrPrincipalNotFound))
}

func TestStoreMigrateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Migrate(f.ctx))
}
