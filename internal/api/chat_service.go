package api

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/backend"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

// ListChats returns the user's chats from the backend, falling back to the
// cache when the backend cannot be reached.
func (s *Service) ListChats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	chats, err := s.chat.Chats(ctx)
	if err == nil {
		if chats == nil {
			chats = []chat.Summary{}
		}
		return encode(ChatsResponse{Chats: chats})
	}
	if backend.NeedsLogin(err) || s.db == nil {
		return nil, toStatus("list chats", err)
	}

	s.logger.Warn("backend unavailable, serving cached chats", zap.Error(err))
	cached, cerr := s.db.ListChats(200, 0)
	if cerr != nil {
		return nil, toStatus("list chats", err)
	}
	out := make([]chat.Summary, 0, len(cached))
	for _, c := range cached {
		out = append(out, c.Summary())
	}
	return encode(ChatsResponse{Chats: out, Cached: true})
}

// StartChat returns the chat id for a conversation with a partner.
func (s *Service) StartChat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req StartChatRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if req.PartnerID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "partner_id is required")
	}
	chatID, err := s.chat.StartChat(ctx, req.PartnerID)
	if err != nil {
		return nil, toStatus("start chat", err)
	}
	return encode(ChatRef{ChatID: chatID})
}

// OpenChat makes chat_id the active room and returns its history.
func (s *Service) OpenChat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := chatRef(in)
	if err != nil {
		return nil, err
	}
	opened, err := s.chat.OpenChat(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("open chat", err)
	}
	if err := s.chat.MarkRead(ctx, req.ChatID); err != nil {
		s.logger.Warn("mark read on open failed", zap.String("chat_id", req.ChatID), zap.Error(err))
	} else if s.db != nil {
		if err := s.db.ClearUnread(req.ChatID); err != nil {
			s.logger.Warn("clear cached unread failed", zap.String("chat_id", req.ChatID), zap.Error(err))
		}
	}
	msgs := opened.Messages
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return encode(OpenChatResponse{ChatID: req.ChatID, Partner: opened.Info.Partner, Messages: msgs})
}

// CloseChat leaves the active room.
func (s *Service) CloseChat(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.chat.CloseChat(); err != nil {
		return nil, toStatus("close chat", err)
	}
	return &emptypb.Empty{}, nil
}

// MarkRead marks chat_id read on the backend and clears the cached
// unread count.
func (s *Service) MarkRead(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := chatRef(in)
	if err != nil {
		return nil, err
	}
	if err := s.chat.MarkRead(ctx, req.ChatID); err != nil {
		return nil, toStatus("mark read", err)
	}
	if s.db != nil {
		if err := s.db.ClearUnread(req.ChatID); err != nil {
			s.logger.Warn("clear cached unread failed", zap.String("chat_id", req.ChatID), zap.Error(err))
		}
	}
	return &emptypb.Empty{}, nil
}

func chatRef(in *structpb.Struct) (ChatRef, error) {
	var req ChatRef
	if err := decodeRequest(in, &req); err != nil {
		return req, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if req.ChatID == "" {
		return req, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	return req, nil
}
