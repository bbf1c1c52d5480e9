package api

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

const defaultLimit = 50

// ListMessages returns the open chat's live stream, or for any other chat
// the cached messages, fetching from the backend when nothing is cached.
func (s *Service) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListMessagesRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if req.ChatID == "" {
		req.ChatID = s.chat.Snapshot().ActiveChat
	}
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	resp := MessagesResponse{ChatID: req.ChatID}
	switch {
	case req.ChatID == s.chat.Snapshot().ActiveChat && req.BeforeMs == 0:
		resp.Source = "live"
		resp.Messages = tail(s.chat.Messages(), limit)
	default:
		if s.db != nil {
			msgs, err := s.db.ListMessages(req.ChatID, req.BeforeMs, limit)
			if err != nil {
				s.logger.Warn("cache read failed", zap.String("chat_id", req.ChatID), zap.Error(err))
			} else if len(msgs) > 0 || req.BeforeMs > 0 {
				resp.Source = "cache"
				resp.Messages = msgs
				break
			}
		}
		msgs, err := s.chat.History(ctx, req.ChatID)
		if err != nil {
			return nil, toStatus("list messages", err)
		}
		resp.Source = "backend"
		resp.Messages = tail(msgs, limit)
	}
	if resp.Messages == nil {
		resp.Messages = []chat.Message{}
	}
	return encode(resp)
}

// SearchMessages searches the cache.
func (s *Service) SearchMessages(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SearchRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if s.db == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "no message cache")
	}
	results, err := s.db.SearchMessages(req.Query, req.ChatID, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	resp := SearchResponse{Results: make([]SearchHit, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, SearchHit{Message: r.Message, Snippet: r.Snippet})
	}
	return encode(resp)
}

// SendText posts text to the open chat.
func (s *Service) SendText(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req TextRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	m, err := s.chat.Send(req.Text)
	if err != nil && m.Status != chat.StatusFailed {
		return nil, toStatus("send", err)
	}
	// A failed emit still appended a message marked failed.
	return encode(SendResponse{Message: m})
}

// InputChanged feeds the composer's text into the typing signal.
func (s *Service) InputChanged(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req TextRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.chat.InputChanged(req.Text); err != nil {
		return nil, toStatus("input changed", err)
	}
	return &emptypb.Empty{}, nil
}

func tail(msgs []chat.Message, n int) []chat.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
