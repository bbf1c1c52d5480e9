package api

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status reports the channel, room and identity state.
func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.chat.Snapshot()
	resp := StatusResponse{
		Profile:    s.profile,
		State:      string(snap.State),
		UserID:     snap.UserID,
		Username:   snap.Username,
		ActiveChat: snap.ActiveChat,
		Partner:    snap.Partner,
		RoomState:  string(snap.RoomState),
		Refreshing: snap.Refreshing,
		Typing:     s.chat.Typing(),
		UptimeMs:   time.Since(s.startedAt).Milliseconds(),
	}
	if s.db != nil {
		if n, err := s.db.ChatCount(); err == nil {
			resp.CachedChats = n
		}
		if n, err := s.db.MessageCount(); err == nil {
			resp.CachedMsgs = n
		}
	}
	return encode(resp)
}

// Login signs in to the backend and connects the channel.
func (s *Service) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req LoginRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if req.Username == "" || req.Password == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "username and password are required")
	}
	id, err := s.chat.Login(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", zap.String("username", req.Username), zap.Error(err))
		return nil, toStatus("login", err)
	}
	return encode(LoginResponse{UserID: id.UserID, Username: id.Username})
}

// Verify checks the stored session against the backend.
func (s *Service) Verify(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	v, err := s.chat.Verify(ctx)
	if err != nil {
		return nil, toStatus("verify", err)
	}
	return encode(VerifyResponse{Valid: v.Valid, User: v.User})
}
