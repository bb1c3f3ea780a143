package grpcx

import (
	"context"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/service"

	"google.golang.org/grpc"
)

const ServiceName = "chat.v1.ChatService"

const (
	ChatService_GetOrCreateChat_FullMethodName = "/" + ServiceName + "/GetOrCreateChat"
	ChatService_GetChat_FullMethodName         = "/" + ServiceName + "/GetChat"
	ChatService_ListChats_FullMethodName       = "/" + ServiceName + "/ListChats"
	ChatService_ListMessages_FullMethodName    = "/" + ServiceName + "/ListMessages"
	ChatService_SendMessage_FullMethodName     = "/" + ServiceName + "/SendMessage"
	ChatService_MarkRead_FullMethodName        = "/" + ServiceName + "/MarkRead"
)

type GetOrCreateChatRequest struct {
	ClinicID string `json:"clinicId"`
	DoctorID string `json:"doctorId"`
}

type GetChatRequest struct {
	ChatID string `json:"chatId"`
}

type ListChatsRequest struct {
	ParticipantType string `json:"participantType"`
	ParticipantID   string `json:"participantId"`
}

type ListChatsResponse struct {
	Chats []domain.Chat `json:"chats"`
}

type ListMessagesRequest struct {
	ChatID string `json:"chatId"`
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Order  string `json:"order,omitempty"`
}

type SendMessageRequest = service.SendMessageInput

type MarkReadRequest struct {
	MessageID string `json:"messageId"`
}

// ChatServiceServer: серверная сторона chat.v1.ChatService.
type ChatServiceServer interface {
	GetOrCreateChat(context.Context, *GetOrCreateChatRequest) (*domain.Chat, error)
	GetChat(context.Context, *GetChatRequest) (*domain.Chat, error)
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*domain.MessagePage, error)
	SendMessage(context.Context, *SendMessageRequest) (*domain.MessageView, error)
	MarkRead(context.Context, *MarkReadRequest) (*domain.MessageView, error)
}

// ChatService_ServiceDesc описывает сервис вручную: proto-стабов нет, кодек JSON.
var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetOrCreateChat", ChatService_GetOrCreateChat_FullMethodName, ChatServiceServer.GetOrCreateChat),
		unary("GetChat", ChatService_GetChat_FullMethodName, ChatServiceServer.GetChat),
		unary("ListChats", ChatService_ListChats_FullMethodName, ChatServiceServer.ListChats),
		unary("ListMessages", ChatService_ListMessages_FullMethodName, ChatServiceServer.ListMessages),
		unary("SendMessage", ChatService_SendMessage_FullMethodName, ChatServiceServer.SendMessage),
		unary("MarkRead", ChatService_MarkRead_FullMethodName, ChatServiceServer.MarkRead),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chat/v1/chat.proto",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

// unary строит MethodDesc так же, как это делает protoc-gen-go-grpc для каждого метода.
func unary[Req, Resp any](
	name, fullMethod string,
	call func(ChatServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
