package credentials

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func newClientsRepository(db *bun.DB) repository.Repository[*Client] {
	return repository.NewRepository[*Client](db, repository.ModelHandlers[*Client]{
		NewRecord: func() *Client { return &Client{} },
		GetID: func(c *Client) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Client, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "client_id"
		},
	})
}

func findClient(ctx context.Context, repo repository.Repository[*Client], clientID string) (*Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, ErrNotFound
	}

	client, err := repo.GetByIdentifier(ctx, clientID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, internalError(err, "failed to load client")
	}
	return client, nil
}

func createClient(ctx context.Context, repo repository.Repository[*Client], c *Client, now time.Time) (*Client, error) {
	if c == nil || strings.TrimSpace(c.ClientID) == "" {
		return nil, goerrors.New("client_id is required", goerrors.CategoryBadInput)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.RedirectURIs == nil {
		c.RedirectURIs = []string{}
	}
	ts := now.UTC()
	c.CreatedAt = &ts

	created, err := repo.Create(ctx, c)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.New("client already registered", goerrors.CategoryConflict).
				WithTextCode(TextCodeConflict).
				WithCode(goerrors.CodeConflict)
		}
		return nil, internalError(err, "failed to create client")
	}
	return created, nil
}
