package credentials_test

import (
	"net/url"
	"sync"
	"testing"
	"time"

	credentials "github.com/goliatone/go-credentials"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	appRedirect = "https://app.example.com/callback"
	appSecret   = "app-secret"
)

func authorizeFor(t *testing.T, f *fixture, p *credentials.Principal, state string) *credentials.AuthorizeResult {
	t.Helper()
	res, err := f.broker.Authorize(f.ctx, credentials.AuthorizeRequest{
		ClientID:     "app",
		RedirectURI:  appRedirect,
		ResponseType: credentials.ResponseTypeCode,
		State:        state,
		Subject:      &credentials.Subject{ID: p.ID.String(), Kind: p.Kind},
	})
	require.NoError(t, err)
	return res
}

func exchange(f *fixture, code string) (*credentials.TokenResponse, error) {
	return f.broker.Token(f.ctx, credentials.TokenRequest{
		Code:         code,
		ClientID:     "app",
		ClientSecret: appSecret,
		RedirectURI:  appRedirect,
		GrantType:    credentials.GrantTypeAuthorizationCode,
	})
}

func TestRegisterClientHashesSecret(t *testing.T) {
	f := newFixture(t)
	client := f.registerClient(t, "app", appSecret, appRedirect)

	assert.NotEqual(t, appSecret, client.ClientSecretHash)
	ok, err := f.hasher.Verify(f.ctx, appSecret, client.ClientSecretHash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.broker.RegisterClient(f.ctx, &credentials.Client{
		ClientID:     "relative",
		Name:         "Bad",
		RedirectURIs: []string{"/callback"},
	}, "secret")
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidRedirect))

	_, err = f.broker.RegisterClient(f.ctx, &credentials.Client{ClientID: "nosecret", Name: "Bad"}, "")
	assert.Equal(t, credentials.TextCodeValidation, credentials.ErrorKind(err))
}

func TestAuthorizeRedirectCarriesCodeAndState(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect, "https://app.example.com/cb?lang=en")
	p := f.createPrincipal(t, credentials.KindUser, "a@x.com", "password123", true)

	res := authorizeFor(t, f, p, "xyz 123")
	assert.Equal(t, f.clock.Now().Add(60*time.Second), res.ExpiresAt)

	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, "/callback", u.Path)
	assert.Equal(t, res.Code, u.Query().Get("code"))
	assert.Equal(t, "xyz 123", u.Query().Get("state"))
	assert.Regexp(t, hexToken, res.Code)

	// registered query parameters are preserved
	res2, err := f.broker.Authorize(f.ctx, credentials.AuthorizeRequest{
		ClientID:     "app",
		RedirectURI:  "https://app.example.com/cb?lang=en",
		ResponseType: credentials.ResponseTypeCode,
		Subject:      &credentials.Subject{ID: p.ID.String(), Kind: p.Kind},
	})
	require.NoError(t, err)
	u, err = url.Parse(res2.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Query().Get("lang"))
	assert.Equal(t, res2.Code, u.Query().Get("code"))
	assert.False(t, u.Query().Has("state"))

	stored, err := f.store.FindAuthorizationCode(f.ctx, credentials.Fingerprint(res.Code))
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.PrincipalID)
	assert.Equal(t, appRedirect, stored.RedirectURI)
}

func TestAuthorizeRejections(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect)
	p := f.createPrincipal(t, credentials.KindUser, "a@x.com", "password123", true)
	subject := &credentials.Subject{ID: p.ID.String(), Kind: p.Kind}

	tests := []struct {
		name string
		req  credentials.AuthorizeRequest
		want error
	}{
		{
			name: "unsupported response type",
			req:  credentials.AuthorizeRequest{ClientID: "app", RedirectURI: appRedirect, ResponseType: "token", Subject: subject},
			want: credentials.ErrUnsupportedResponseType,
		},
		{
			name: "no session",
			req:  credentials.AuthorizeRequest{ClientID: "app", RedirectURI: appRedirect, ResponseType: "code"},
			want: credentials.ErrUnauthorized,
		},
		{
			name: "unknown client",
			req:  credentials.AuthorizeRequest{ClientID: "other", RedirectURI: appRedirect, ResponseType: "code", Subject: subject},
			want: credentials.ErrInvalidClient,
		},
		{
			name: "unregistered redirect",
			req:  credentials.AuthorizeRequest{ClientID: "app", RedirectURI: "https://evil.example.com/cb", ResponseType: "code", Subject: subject},
			want: credentials.ErrInvalidRedirect,
		},
		{
			name: "redirect differs by trailing slash",
			req:  credentials.AuthorizeRequest{ClientID: "app", RedirectURI: appRedirect + "/", ResponseType: "code", Subject: subject},
			want: credentials.ErrInvalidRedirect,
		},
		{
			name: "subject of the wrong kind",
			req: credentials.AuthorizeRequest{ClientID: "app", RedirectURI: appRedirect, ResponseType: "code",
				Subject: &credentials.Subject{ID: p.ID.String(), Kind: credentials.KindAdmin}},
			want: credentials.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.broker.Authorize(f.ctx, tt.req)
			assert.True(t, goerrors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := f.broker.Authorize(f.ctx, credentials.AuthorizeRequest{ResponseType: "code", Subject: subject})
	assert.Equal(t, credentials.TextCodeValidation, credentials.ErrorKind(err))
}

func TestTokenExchange(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect)
	p := f.createPrincipal(t, credentials.KindUser, "a@x.com", "password123", true)

	res := authorizeFor(t, f, p, "s")

	tok, err := exchange(f, res.Code)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)

	claims, err := f.tokens.Validate(credentials.KindUser, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, p.ID.String(), claims.UserID())
	assert.Contains(t, claims.Audience, "app")

	info, err := f.broker.UserInfo(f.ctx, credentials.KindUser, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, p.ID.String(), info.ID)
	assert.Equal(t, "a@x.com", info.Email)
	assert.Equal(t, "Pepe Rone", info.Name)

	assert.Contains(t, f.events.Types(), credentials.ActivityEventCodeIssued)
	assert.Contains(t, f.events.Types(), credentials.ActivityEventCodeExchanged)
}

func TestTokenCodeReplay(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect)
	p := f.createPrincipal(t, credentials.KindUser, "a@x.com", "password123", true)

	res := authorizeFor(t, f, p, "")

	_, err := exchange(f, res.Code)
	require.NoError(t, err)

	_, err = exchange(f, res.Code)
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidGrant))
	assert.Equal(t, credentials.TextCodeInvalidGrant, credentials.ErrorKind(err))
}

func TestConcurrentTokenExchangeSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect)
	p := f.createPrincipal(t, credentials.KindUser, "a@x.com", "password123", true)

	res := authorizeFor(t, f, p, "")

	const attempts = 4
	var wg sync.WaitGroup
	start := make(chan struct{})
	tokens := make([]*credentials.TokenResponse, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = exchange(f, res.Code)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, rejected int
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
			require.NotNil(t, tokens[i])
			assert.NotEmpty(t, tokens[i].AccessToken)
		case goerrors.Is(err, credentials.ErrInvalidGrant):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, rejected)
}

func TestTokenRejections(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect, "https://app.example.com/other")
	f.registerClient(t, "second", "second-secret", appRedirect)
	p := f.createPrincipal(t, credentials.KindUser, "a@x.com", "password123", true)

	tests := []struct {
		name   string
		mutate func(*credentials.TokenRequest)
		want   error
	}{
		{
			name:   "unsupported grant",
			mutate: func(r *credentials.TokenRequest) { r.GrantType = "password" },
			want:   credentials.ErrUnsupportedGrantType,
		},
		{
			name:   "wrong secret",
			mutate: func(r *credentials.TokenRequest) { r.ClientSecret = "nope" },
			want:   credentials.ErrInvalidClient,
		},
		{
			name:   "unknown client",
			mutate: func(r *credentials.TokenRequest) { r.ClientID = "ghost" },
			want:   credentials.ErrInvalidClient,
		},
		{
			name:   "unregistered redirect",
			mutate: func(r *credentials.TokenRequest) { r.RedirectURI = "https://evil.example.com/cb" },
			want:   credentials.ErrInvalidRedirect,
		},
		{
			name:   "redirect differs from the authorization request",
			mutate: func(r *credentials.TokenRequest) { r.RedirectURI = "https://app.example.com/other" },
			want:   credentials.ErrInvalidGrant,
		},
		{
			name: "code issued to another client",
			mutate: func(r *credentials.TokenRequest) {
				r.ClientID = "second"
				r.ClientSecret = "second-secret"
			},
			want: credentials.ErrInvalidGrant,
		},
		{
			name:   "unknown code",
			mutate: func(r *credentials.TokenRequest) { r.Code = "deadbeef" },
			want:   credentials.ErrInvalidGrant,
		},
		{
			name:   "kind mismatch",
			mutate: func(r *credentials.TokenRequest) { r.Kind = credentials.KindAdmin },
			want:   credentials.ErrInvalidGrant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := authorizeFor(t, f, p, "")
			req := credentials.TokenRequest{
				Code:         res.Code,
				ClientID:     "app",
				ClientSecret: appSecret,
				RedirectURI:  appRedirect,
				GrantType:    credentials.GrantTypeAuthorizationCode,
			}
			tt.mutate(&req)

			_, err := f.broker.Token(f.ctx, req)
			assert.True(t, goerrors.Is(err, tt.want), "got %v", err)

			// a rejected exchange never consumes the code
			_, err = exchange(f, res.Code)
			assert.NoError(t, err)
		})
	}
}

func TestTokenExpiredCode(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect)
	p := f.createPrincipal(t, credentials.KindUser, "a@x.com", "password123", true)

	res := authorizeFor(t, f, p, "")
	f.clock.Advance(61 * time.Second)

	_, err := exchange(f, res.Code)
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidGrant))
	assert.Contains(t, f.events.Types(), credentials.ActivityEventCodeRejected)
}

func TestTokenInactiveClient(t *testing.T) {
	f := newFixture(t)
	_, err := f.broker.RegisterClient(f.ctx, &credentials.Client{
		ClientID:     "app",
		Name:         "Disabled",
		RedirectURIs: []string{appRedirect},
	}, appSecret)
	require.NoError(t, err)

	_, err = exchange(f, "whatever")
	assert.True(t, goerrors.Is(err, credentials.ErrInvalidClient))
}

func TestUserInfoRejections(t *testing.T) {
	f := newFixture(t)
	f.registerClient(t, "app", appSecret, appRedirect)
	p := f.createPrincipal(t, credentials.KindAdmin, "root@x.com", "password123", true)
	identity := credentials.NewIdentityFromPrincipal(p)

	_, err := f.broker.UserInfo(f.ctx, credentials.KindAdmin, "")
	assert.True(t, goerrors.Is(err, credentials.ErrUnauthorized))

	_, err = f.broker.UserInfo(f.ctx, credentials.KindAdmin, "garbage")
	assert.Equal(t, credentials.TextCodeUnauthorized, credentials.ErrorKind(err))

	// first party session tokens are not access tokens
	session, _, err := f.tokens.Generate(f.ctx, identity, nil)
	require.NoError(t, err)
	_, err = f.broker.UserInfo(f.ctx, credentials.KindAdmin, session)
	assert.Equal(t, credentials.TextCodeUnauthorized, credentials.ErrorKind(err))

	stranger, _, err := f.tokens.MintAccessToken(f.ctx, identity, credentials.ScopedTokenOptions{Audience: []string{"ghost"}})
	require.NoError(t, err)
	_, err = f.broker.UserInfo(f.ctx, credentials.KindAdmin, stranger)
	assert.True(t, goerrors.Is(err, credentials.ErrUnauthorized))

	access, _, err := f.tokens.MintAccessToken(f.ctx, identity, credentials.ScopedTokenOptions{Audience: []string{"app"}})
	require.NoError(t, err)

	_, err = f.broker.UserInfo(f.ctx, credentials.KindUser, access)
	assert.Equal(t, credentials.TextCodeUnauthorized, credentials.ErrorKind(err))

	info, err := f.broker.UserInfo(f.ctx, credentials.KindAdmin, access)
	require.NoError(t, err)
	assert.Equal(t, string(credentials.RoleAdmin), info.Role)
}
