package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the admin service over the daemon's unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects lazily; the first call fails if the daemon is not running.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, methodPath(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateUser(ctx context.Context, req *CreateUserRequest) (*UserReply, error) {
	return invoke[UserReply](ctx, c, "CreateUser", req)
}

func (c *Client) IssueToken(ctx context.Context, req *IssueTokenRequest) (*TokenReply, error) {
	return invoke[TokenReply](ctx, c, "IssueToken", req)
}

func (c *Client) CreateDirectChat(ctx context.Context, req *CreateDirectChatRequest) (*ChatReply, error) {
	return invoke[ChatReply](ctx, c, "CreateDirectChat", req)
}

func (c *Client) CreateGroupChat(ctx context.Context, req *CreateGroupChatRequest) (*ChatReply, error) {
	return invoke[ChatReply](ctx, c, "CreateGroupChat", req)
}

func (c *Client) History(ctx context.Context, req *HistoryRequest) (*HistoryReply, error) {
	return invoke[HistoryReply](ctx, c, "History", req)
}

func (c *Client) Status(ctx context.Context) (*StatusReply, error) {
	return invoke[StatusReply](ctx, c, "Status", &StatusRequest{})
}

// MessageStream is the client side of WatchMessages.
type MessageStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the server ends the stream.
func (m *MessageStream) Recv() (*MessageEvent, error) {
	evt := new(MessageEvent)
	if err := m.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// WatchMessages opens a stream of appended messages. Cancel ctx to stop it.
func (c *Client) WatchMessages(ctx context.Context, req *WatchRequest) (*MessageStream, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodPath("WatchMessages"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &MessageStream{stream: stream}, nil
}
