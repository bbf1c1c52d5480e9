package api

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed ChatService client.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) call(ctx context.Context, name string, req any, resp any) error {
	var in proto.Message = &emptypb.Empty{}
	if req != nil {
		s, err := encode(req)
		if err != nil {
			return err
		}
		in = s
	}
	if resp == nil {
		return c.conn.Invoke(ctx, method(name), in, &emptypb.Empty{})
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method(name), in, out); err != nil {
		return err
	}
	return decode(out, resp)
}

// Status returns the daemon's session status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.call(ctx, "Status", nil, &resp)
	return resp, err
}

// Login signs in.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.call(ctx, "Login", LoginRequest{Username: username, Password: password}, &resp)
	return resp, err
}

// Verify checks the stored session.
func (c *Client) Verify(ctx context.Context) (VerifyResponse, error) {
	var resp VerifyResponse
	err := c.call(ctx, "Verify", nil, &resp)
	return resp, err
}

// ListChats returns the chat list.
func (c *Client) ListChats(ctx context.Context) (ChatsResponse, error) {
	var resp ChatsResponse
	err := c.call(ctx, "ListChats", nil, &resp)
	return resp, err
}

// StartChat returns the chat id for a conversation with partnerID.
func (c *Client) StartChat(ctx context.Context, partnerID string) (string, error) {
	var resp ChatRef
	err := c.call(ctx, "StartChat", StartChatRequest{PartnerID: partnerID}, &resp)
	return resp.ChatID, err
}

// OpenChat makes chatID the daemon's active room.
func (c *Client) OpenChat(ctx context.Context, chatID string) (OpenChatResponse, error) {
	var resp OpenChatResponse
	err := c.call(ctx, "OpenChat", ChatRef{ChatID: chatID}, &resp)
	return resp, err
}

// CloseChat leaves the active room.
func (c *Client) CloseChat(ctx context.Context) error {
	return c.call(ctx, "CloseChat", nil, nil)
}

// ListMessages returns a chat's messages. An empty chatID means the open
// chat.
func (c *Client) ListMessages(ctx context.Context, req ListMessagesRequest) (MessagesResponse, error) {
	var resp MessagesResponse
	err := c.call(ctx, "ListMessages", req, &resp)
	return resp, err
}

// SearchMessages searches cached messages.
func (c *Client) SearchMessages(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	var resp SearchResponse
	err := c.call(ctx, "SearchMessages", req, &resp)
	return resp, err
}

// SendText posts text to the open chat.
func (c *Client) SendText(ctx context.Context, text string) (SendResponse, error) {
	var resp SendResponse
	err := c.call(ctx, "SendText", TextRequest{Text: text}, &resp)
	return resp, err
}

// InputChanged reports composer edits.
func (c *Client) InputChanged(ctx context.Context, text string) error {
	return c.call(ctx, "InputChanged", TextRequest{Text: text}, nil)
}

// MarkRead marks chatID read.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.call(ctx, "MarkRead", ChatRef{ChatID: chatID}, nil)
}

// EventStream receives events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon ends
// the stream.
func (s *EventStream) Recv() (Event, error) {
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		return Event{}, err
	}
	var evt Event
	if err := decode(out, &evt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// WatchEvents subscribes to daemon events whose kind starts with prefix.
// Cancel ctx to stop.
func (c *Client) WatchEvents(ctx context.Context, prefix string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], method("WatchEvents"))
	if err != nil {
		return nil, err
	}
	in, err := encode(WatchRequest{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// IsStreamEnd reports whether err just means the event stream is over.
func IsStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
