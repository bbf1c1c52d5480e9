package api

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
)

// WatchEvents streams bus events whose kind starts with the requested
// prefix until the client goes away.
func (s *Service) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := decodeRequest(in, &req); err != nil {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := encode(envelope(evt))
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func envelope(evt bus.Event) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    evt.Kind,
		ChatID:  evt.ChatID,
		TsMs:    evt.Timestamp.UnixMilli(),
		Payload: evt.Payload,
	}
}
