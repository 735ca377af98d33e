package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/logging"
	pb "github.com/dmitrijs2005/marksync/internal/proto"
)

func newTestServer() *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop(), &fakeUsers{}, &fakeSync{}, &fakeExport{})
}

func withToken(token string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_UnprotectedWithoutToken(t *testing.T) {
	s := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: pb.Marksync_Login_FullMethodName}

	called := false
	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_Protected(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		wantMsg string
	}{
		{"missing token", context.Background(), "missing token"},
		{"garbage token", withToken("not-a-valid-jwt"), common.ErrInvalidToken.Error()},
		{"expired token", withToken(mustToken(-time.Minute)), common.ErrTokenExpired.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			info := &grpc.UnaryServerInfo{FullMethod: pb.Marksync_Sync_FullMethodName}

			_, err := s.accessTokenInterceptor(tt.ctx, nil, info, func(ctx context.Context, req any) (any, error) {
				t.Fatal("handler should not be called")
				return nil, nil
			})
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
			assert.Equal(t, tt.wantMsg, status.Convert(err).Message())
		})
	}
}

func TestInterceptor_ValidTokenSetsUserID(t *testing.T) {
	s := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: pb.Marksync_Export_FullMethodName}

	var got any
	_, err := s.accessTokenInterceptor(withToken(mustToken(time.Hour)), nil, info, func(ctx context.Context, req any) (any, error) {
		got = ctx.Value(UserIDKey)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, testUserID, got)
}
