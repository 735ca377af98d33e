package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	pb "github.com/dmitrijs2005/marksync/internal/proto"
)

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn
	client      pb.MarksyncClient

	mu     sync.Mutex
	tokens Tokens
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// accessTokenInterceptor attaches the access token and, when the server says
// it has expired, rotates the pair once and repeats the call.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tokens := s.Tokens()
	err := invoker(withAccessToken(ctx, tokens.Access), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) || tokens.Refresh == "" {
		return err
	}

	resp, rerr := s.client.RefreshToken(ctx, &pb.RefreshTokenRequest{RefreshToken: tokens.Refresh})
	if rerr != nil {
		return rerr
	}
	s.SetTokens(Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken})

	return invoker(withAccessToken(ctx, resp.AccessToken), method, req, reply, cc, opts...)
}

// NewGRPCClient dials lazily; the first call opens the connection. timeout
// bounds every call, zero means no bound.
func NewGRPCClient(endpointURL string, timeout time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: timeout}
	conn, err := grpc.NewClient(endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", endpointURL, err)
	}
	c.conn = conn
	c.client = pb.NewMarksyncClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Tokens() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

func (s *GRPCClient) SetTokens(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
}

func (s *GRPCClient) Register(ctx context.Context, username string, password []byte) (string, error) {
	resp, err := s.client.RegisterUser(ctx, &pb.RegisterUserRequest{Username: username, Password: password})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.APIKey, nil
}

func (s *GRPCClient) Login(ctx context.Context, username string, password []byte) error {
	resp, err := s.client.Login(ctx, &pb.LoginRequest{Username: username, Password: password})
	if err != nil {
		return s.mapError(err)
	}
	s.SetTokens(Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken})
	return nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &pb.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Sync(ctx context.Context, bookmarks []bookmark.Bookmark, full bool) (*SyncResult, error) {
	if s.Tokens().IsZero() {
		return nil, ErrNotLoggedIn
	}

	req, err := pb.NewSyncRequest(bookmarks, full)
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	resp, err := s.client.Sync(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}

	result := &SyncResult{Bookmarks: resp.Bookmarks, Added: resp.Added, Updated: resp.Updated}
	for _, r := range resp.Rejected {
		result.Rejected = append(result.Rejected, Rejection{Index: r.Index, URL: r.URL, Code: r.Code, Message: r.Message})
	}
	return result, nil
}

func (s *GRPCClient) Export(ctx context.Context) (*Export, error) {
	if s.Tokens().IsZero() {
		return nil, ErrNotLoggedIn
	}

	resp, err := s.client.Export(ctx, &pb.ExportRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &Export{Key: resp.Key, URL: resp.URL, Count: resp.Count, Expires: resp.Expires}, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.AlreadyExists:
		return ErrUserExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
