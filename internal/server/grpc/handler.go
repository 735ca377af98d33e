package grpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	pb "github.com/dmitrijs2005/marksync/internal/proto"
)

func (s *GRPCServer) Ping(ctx context.Context, req *pb.PingRequest) (*pb.PingResponse, error) {
	return &pb.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) RegisterUser(ctx context.Context, req *pb.RegisterUserRequest) (*pb.RegisterUserResponse, error) {
	defer common.WipeByteArray(req.Password)

	if req.Username == "" || len(req.Password) == 0 {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}

	user, err := s.users.Register(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, status.Error(codes.AlreadyExists, "user already exists")
		}
		s.logger.Error(ctx, "registration failed", "username", req.Username, "error", err)
		return nil, status.Error(codes.Internal, common.ErrorInternal.Error())
	}

	s.logger.Info(ctx, "Registered", "username", req.Username, "user", user.ID)
	return &pb.RegisterUserResponse{UserID: user.ID.String(), APIKey: hex.EncodeToString(user.APIKey)}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.LoginResponse, error) {
	defer common.WipeByteArray(req.Password)

	tokens, err := s.users.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return nil, status.Error(codes.Internal, common.ErrorInternal.Error())
	}

	return &pb.LoginResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *pb.RefreshTokenRequest) (*pb.RefreshTokenResponse, error) {
	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorUnauthorized):
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		case errors.Is(err, common.ErrRefreshTokenExpired):
			return nil, status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
		}
		return nil, status.Error(codes.Internal, common.ErrorInternal.Error())
	}

	return &pb.RefreshTokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func recordStatuses(errs []*bookmark.RecordError) []pb.RecordStatus {
	out := make([]pb.RecordStatus, 0, len(errs))
	for _, e := range errs {
		out = append(out, pb.RecordStatus{
			Index:   e.Index,
			URL:     e.URL,
			Code:    codes.InvalidArgument.String(),
			Message: e.Err.Error(),
		})
	}
	return out
}

// Sync reconciles the request's bookmarks for the caller. Records that fail
// to decode come back as per-record InvalidArgument statuses; only a request
// with no acceptable record at all fails as a whole.
func (s *GRPCServer) Sync(ctx context.Context, req *pb.SyncRequest) (*pb.SyncResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	batch, err := bookmark.DecodeJSON(bytes.NewReader(req.Bookmarks))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if len(batch.Bookmarks) == 0 && len(batch.Rejected) > 0 {
		return nil, status.Error(codes.InvalidArgument, batch.Rejected[0].Error())
	}

	res, err := s.sync.Sync(ctx, userID, batch, req.Full)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, status.Error(codes.Canceled, err.Error())
		}
		s.logger.Error(ctx, "sync failed", "user", userID, "error", err)
		return nil, status.Error(codes.Internal, common.ErrorInternal.Error())
	}

	out := &pb.SyncResponse{
		Bookmarks: res.Bookmarks,
		Added:     len(res.Reconcile.Added),
		Updated:   res.Reconcile.Updated,
	}
	if out.Bookmarks == nil {
		out.Bookmarks = []bookmark.Bookmark{}
	}
	if len(res.Rejected) > 0 {
		out.Rejected = recordStatuses(res.Rejected)
	}
	return out, nil
}

func (s *GRPCServer) Export(ctx context.Context, req *pb.ExportRequest) (*pb.ExportResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	exp, err := s.exporter.Export(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "export failed", "user", userID, "error", err)
		return nil, status.Error(codes.Internal, common.ErrorInternal.Error())
	}
	return &pb.ExportResponse{Key: exp.Key, URL: exp.URL, Count: exp.Count, Expires: exp.Expires.UTC()}, nil
}
