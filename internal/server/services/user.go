// Package services contains server-side business logic. This file implements
// UserService: accounts, API-key checks for the HTTP sync API, and the
// JWT/refresh-token pair used by gRPC clients.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/dbx"
	"github.com/dmitrijs2005/marksync/internal/server/auth"
	"github.com/dmitrijs2005/marksync/internal/server/config"
	"github.com/dmitrijs2005/marksync/internal/server/models"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	bcryptCost                   int
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		bcryptCost:                   bcrypt.DefaultCost,
	}
}

// Register creates a user with a bcrypt password hash and a fresh random API
// key. The returned user carries the key so it can be shown once.
func (s *UserService) Register(ctx context.Context, username string, password []byte) (*models.User, error) {
	if username == "" || len(password) == 0 {
		return nil, errors.New("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	apiKey := common.GenerateRandByteArray(common.APIKeySize)
	if apiKey == nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{ID: uuid.New(), UserName: username, PasswordHash: hash, APIKey: apiKey}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Login checks the password and returns a new TokenPair.
func (s *UserService) Login(ctx context.Context, userName string, password []byte) (*TokenPair, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, password) != nil {
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, user.ID, s.db)
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// AuthenticateAPIKey resolves the owner of an HTTP sync request.
func (s *UserService) AuthenticateAPIKey(ctx context.Context, userName string, apiKey []byte) (uuid.UUID, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return uuid.Nil, common.ErrUserDoesNotExist
		}
		return uuid.Nil, fmt.Errorf("error loading user: %w", err)
	}
	if subtle.ConstantTimeCompare(user.APIKey, apiKey) != 1 {
		return uuid.Nil, common.ErrWrongAPIKey
	}
	return user.ID, nil
}

// UserIDFromAccessToken verifies a JWT access token.
func (s *UserService) UserIDFromAccessToken(token string) (uuid.UUID, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}

// GetUser looks a user up by name, for the admin tool.
func (s *UserService) GetUser(ctx context.Context, userName string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetUserByLogin(ctx, userName)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID uuid.UUID, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
