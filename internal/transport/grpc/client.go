package grpcx

import (
	"context"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client: типизированный клиент chat.v1.ChatService.
type Client struct {
	cc *grpc.ClientConn
}

func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)

	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error { return c.cc.Close() }

// WithToken прикрепляет bearer-токен к исходящему вызову.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, mdAuthorization, "Bearer "+token)
}

func (c *Client) GetOrCreateChat(ctx context.Context, in *GetOrCreateChatRequest) (*domain.Chat, error) {
	out := new(domain.Chat)
	if err := c.cc.Invoke(ctx, ChatService_GetOrCreateChat_FullMethodName, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetChat(ctx context.Context, in *GetChatRequest) (*domain.Chat, error) {
	out := new(domain.Chat)
	if err := c.cc.Invoke(ctx, ChatService_GetChat_FullMethodName, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListChats(ctx context.Context, in *ListChatsRequest) (*ListChatsResponse, error) {
	out := new(ListChatsResponse)
	if err := c.cc.Invoke(ctx, ChatService_ListChats_FullMethodName, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMessages(ctx context.Context, in *ListMessagesRequest) (*domain.MessagePage, error) {
	out := new(domain.MessagePage)
	if err := c.cc.Invoke(ctx, ChatService_ListMessages_FullMethodName, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, in *SendMessageRequest) (*domain.MessageView, error) {
	out := new(domain.MessageView)
	if err := c.cc.Invoke(ctx, ChatService_SendMessage_FullMethodName, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkRead(ctx context.Context, in *MarkReadRequest) (*domain.MessageView, error) {
	out := new(domain.MessageView)
	if err := c.cc.Invoke(ctx, ChatService_MarkRead_FullMethodName, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
