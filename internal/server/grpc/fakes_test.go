package grpc

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/server/auth"
	"github.com/dmitrijs2005/marksync/internal/server/models"
	"github.com/dmitrijs2005/marksync/internal/server/services"
)

var (
	testSecret = []byte("super-secret")
	testUserID = uuid.MustParse("1f2e3d4c-5b6a-4978-8a9b-0c1d2e3f4a5b")
)

type fakeUsers struct {
	regResp *models.User
	regErr  error

	loginResp *services.TokenPair
	loginErr  error

	refreshResp *services.TokenPair
	refreshErr  error
}

func (f *fakeUsers) Register(ctx context.Context, username string, password []byte) (*models.User, error) {
	return f.regResp, f.regErr
}

func (f *fakeUsers) Login(ctx context.Context, userName string, password []byte) (*services.TokenPair, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	return f.refreshResp, f.refreshErr
}

func (f *fakeUsers) UserIDFromAccessToken(token string) (uuid.UUID, error) {
	return auth.GetUserIDFromToken(token, testSecret)
}

type fakeSync struct {
	gotOwner uuid.UUID
	gotBatch *bookmark.Batch
	gotFull  bool

	out []bookmark.Bookmark
	err error
}

func (f *fakeSync) Sync(ctx context.Context, owner uuid.UUID, batch *bookmark.Batch, full bool) (*services.SyncResult, error) {
	f.gotOwner, f.gotBatch, f.gotFull = owner, batch, full
	if f.err != nil {
		return nil, f.err
	}
	rec := &services.ReconcileResult{Updated: len(batch.Bookmarks)}
	return &services.SyncResult{Bookmarks: f.out, Rejected: batch.Rejected, Reconcile: rec}, nil
}

type fakeExport struct {
	out *services.Export
	err error
}

func (f *fakeExport) Export(ctx context.Context, owner uuid.UUID) (*services.Export, error) {
	return f.out, f.err
}

func mustToken(validity time.Duration) string {
	token, err := auth.GenerateToken(testUserID, testSecret, validity)
	if err != nil {
		panic(err)
	}
	return token
}
