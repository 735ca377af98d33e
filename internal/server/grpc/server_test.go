package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/logging"
	pb "github.com/dmitrijs2005/marksync/internal/proto"
	"github.com/dmitrijs2005/marksync/internal/server/services"
	"github.com/dmitrijs2005/marksync/internal/urlid"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), &fakeUsers{}, &fakeSync{}, &fakeExport{})
	assert.Error(t, srv.Run(context.Background()))
}

func TestServe_EndToEndOverJSONCodec(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	stored := bookmark.Bookmark{
		URL:     urlid.MustCanonicalize("https://example.com/a"),
		Title:   "Stored",
		Created: t0,
		Updated: t0,
		Tags:    bookmark.NewTagTriples(bookmark.TagTriple{Name: "go", ChangedAt: t0}),
	}
	users := &fakeUsers{loginResp: &services.TokenPair{AccessToken: mustToken(time.Hour), RefreshToken: "r"}}
	syncer := &fakeSync{out: []bookmark.Bookmark{stored}}
	srv := NewGRPCServer("bufnet", logging.Nop(), users, syncer, &fakeExport{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, listener) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := pb.NewMarksyncClient(conn)

	ping, err := client.Ping(ctx, &pb.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", ping.Status)

	req, err := pb.NewSyncRequest([]bookmark.Bookmark{stored}, false)
	require.NoError(t, err)

	_, err = client.Sync(ctx, req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	login, err := client.Login(ctx, &pb.LoginRequest{Username: "alice", Password: []byte("pw")})
	require.NoError(t, err)

	authed := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, login.AccessToken)
	resp, err := client.Sync(authed, req)
	require.NoError(t, err)

	require.Len(t, resp.Bookmarks, 1)
	assert.True(t, stored.Equal(resp.Bookmarks[0]))
	assert.Equal(t, testUserID, syncer.gotOwner)
	require.Len(t, syncer.gotBatch.Bookmarks, 1)
	assert.True(t, stored.Equal(syncer.gotBatch.Bookmarks[0]))
}
