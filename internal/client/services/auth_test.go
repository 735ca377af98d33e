package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
)

func TestAuth_LoginResumeLogout(t *testing.T) {
	db := openReplica(t)
	ctx := context.Background()
	fc := &fakeClient{loginTokens: client.Tokens{Access: "A1", Refresh: "R1"}}
	auth := NewAuthService(fc, db)

	require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))

	repo := metadata.NewSQLiteRepository(db)
	refresh, err := metadata.GetString(ctx, repo, metadata.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "R1", refresh)

	// A new process starts without tokens and picks up the saved session.
	fc2 := &fakeClient{}
	username, err := NewAuthService(fc2, db).Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
	assert.Equal(t, client.Tokens{Access: "A1", Refresh: "R1"}, fc2.tokens)

	require.NoError(t, auth.Logout(ctx))
	assert.True(t, fc.tokens.IsZero())

	username, err = NewAuthService(&fakeClient{}, db).Resume(ctx)
	require.NoError(t, err)
	assert.Empty(t, username)
}

func TestAuth_LoginFailureStoresNothing(t *testing.T) {
	db := openReplica(t)
	ctx := context.Background()
	fc := &fakeClient{loginErr: client.ErrUnauthorized}

	err := NewAuthService(fc, db).Login(ctx, "alice", []byte("bad"))
	require.ErrorIs(t, err, client.ErrUnauthorized)

	v, err := metadata.NewSQLiteRepository(db).Get(ctx, metadata.KeyUsername)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAuth_SaveSessionStoresRotatedTokens(t *testing.T) {
	db := openReplica(t)
	ctx := context.Background()
	fc := &fakeClient{loginTokens: client.Tokens{Access: "A1", Refresh: "R1"}}
	auth := NewAuthService(fc, db)
	require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))

	fc.tokens = client.Tokens{Access: "A2", Refresh: "R2"}
	require.NoError(t, auth.SaveSession(ctx))

	repo := metadata.NewSQLiteRepository(db)
	access, err := metadata.GetString(ctx, repo, metadata.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A2", access)

	// Logged out clients have nothing to save.
	fc.tokens = client.Tokens{}
	require.NoError(t, auth.SaveSession(ctx))
	access, err = metadata.GetString(ctx, repo, metadata.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A2", access)
}

func TestAuth_RegisterPingClose(t *testing.T) {
	db := openReplica(t)
	ctx := context.Background()
	fc := &fakeClient{apiKey: "cafebabe", pingErr: client.ErrUnavailable}
	auth := NewAuthService(fc, db)

	key, err := auth.Register(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, "cafebabe", key)

	fc.registerErr = client.ErrUserExists
	_, err = auth.Register(ctx, "alice", []byte("pw"))
	assert.True(t, errors.Is(err, client.ErrUserExists))

	assert.ErrorIs(t, auth.Ping(ctx), client.ErrUnavailable)
	require.NoError(t, auth.Close())
	assert.True(t, fc.closed)
}
