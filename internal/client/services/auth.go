package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marksync/internal/dbx"
)

// AuthService manages the session the replica shares with the server.
// Tokens live in the replica's metadata so every invocation of the CLI can
// pick the session up again.
type AuthService interface {
	// Register creates an account and returns its hex encoded API key.
	Register(ctx context.Context, username string, password []byte) (string, error)
	Login(ctx context.Context, username string, password []byte) error
	Logout(ctx context.Context) error
	// Resume loads a saved session into the client and returns its username,
	// or "" when nobody is logged in.
	Resume(ctx context.Context) (string, error)
	// SaveSession stores tokens the client rotated since Resume or Login.
	SaveSession(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type authService struct {
	client   client.Client
	db       *sql.DB
	metadata func(dbx.DBTX) metadata.Repository
}

func NewAuthService(c client.Client, db *sql.DB) AuthService {
	return &authService{
		client: c,
		db:     db,
		metadata: func(db dbx.DBTX) metadata.Repository {
			return metadata.NewSQLiteRepository(db)
		},
	}
}

func (a *authService) Register(ctx context.Context, username string, password []byte) (string, error) {
	apiKey, err := a.client.Register(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	return apiKey, nil
}

func (a *authService) Login(ctx context.Context, username string, password []byte) error {
	if err := a.client.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	tokens := a.client.Tokens()
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SetStrings(ctx, a.metadata(tx), map[string]string{
			metadata.KeyUsername:     username,
			metadata.KeyAccessToken:  tokens.Access,
			metadata.KeyRefreshToken: tokens.Refresh,
		})
	})
}

func (a *authService) Logout(ctx context.Context) error {
	a.client.SetTokens(client.Tokens{})
	return a.metadata(a.db).Delete(ctx,
		metadata.KeyUsername, metadata.KeyAccessToken, metadata.KeyRefreshToken, metadata.KeyLastSync)
}

func (a *authService) Resume(ctx context.Context) (string, error) {
	repo := a.metadata(a.db)

	username, err := metadata.GetString(ctx, repo, metadata.KeyUsername)
	if err != nil {
		return "", err
	}
	access, err := metadata.GetString(ctx, repo, metadata.KeyAccessToken)
	if err != nil {
		return "", err
	}
	refresh, err := metadata.GetString(ctx, repo, metadata.KeyRefreshToken)
	if err != nil {
		return "", err
	}

	a.client.SetTokens(client.Tokens{Access: access, Refresh: refresh})
	return username, nil
}

func (a *authService) SaveSession(ctx context.Context) error {
	tokens := a.client.Tokens()
	if tokens.IsZero() {
		return nil
	}

	repo := a.metadata(a.db)
	stored, err := metadata.GetString(ctx, repo, metadata.KeyRefreshToken)
	if err != nil {
		return err
	}
	if stored == tokens.Refresh {
		return nil
	}

	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SetStrings(ctx, a.metadata(tx), map[string]string{
			metadata.KeyAccessToken:  tokens.Access,
			metadata.KeyRefreshToken: tokens.Refresh,
		})
	})
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close() error {
	return a.client.Close()
}
