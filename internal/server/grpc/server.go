// Package grpc serves the marksync gRPC API used by token-based clients.
package grpc

import (
	"context"
	"net"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/logging"
	pb "github.com/dmitrijs2005/marksync/internal/proto"
	"github.com/dmitrijs2005/marksync/internal/server/models"
	"github.com/dmitrijs2005/marksync/internal/server/services"
)

// UserService is the part of services.UserService the handler calls.
type UserService interface {
	Register(ctx context.Context, username string, password []byte) (*models.User, error)
	Login(ctx context.Context, userName string, password []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	UserIDFromAccessToken(token string) (uuid.UUID, error)
}

type SyncService interface {
	Sync(ctx context.Context, owner uuid.UUID, batch *bookmark.Batch, full bool) (*services.SyncResult, error)
}

type ExportService interface {
	Export(ctx context.Context, owner uuid.UUID) (*services.Export, error)
}

type GRPCServer struct {
	address  string
	users    UserService
	sync     SyncService
	exporter ExportService
	logger   logging.Logger
}

var _ pb.MarksyncServer = (*GRPCServer)(nil)

func NewGRPCServer(address string, l logging.Logger, us UserService, ss SyncService, es ExportService) *GRPCServer {
	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		users:    us,
		sync:     ss,
		exporter: es,
	}
}

// newServer builds the grpc.Server with the codec and interceptors applied.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(pb.Codec()),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
	)
	pb.RegisterMarksyncServer(srv, s)
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	return srv.Serve(listen)
}
