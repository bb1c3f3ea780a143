package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/service"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"

	"google.golang.org/grpc"
)

type ChatSvc interface {
	GetOrCreateChat(ctx context.Context, in service.GetOrCreateChatInput) (domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	ListChats(ctx context.Context, participantType, participantID string) ([]domain.Chat, error)
	SendMessage(ctx context.Context, in service.SendMessageInput) (domain.MessageView, error)
	ListMessages(ctx context.Context, chatID string, page domain.Page) (domain.MessagePage, error)
	MarkRead(ctx context.Context, messageID string) (domain.MessageView, error)
}

// Handler: реализация ChatServiceServer поверх ChatService.
type Handler struct {
	chat ChatSvc
}

func NewHandler(chat ChatSvc) *Handler {
	return &Handler{chat: chat}
}

func (h *Handler) GetOrCreateChat(ctx context.Context, in *GetOrCreateChatRequest) (*domain.Chat, error) {
	chat, err := h.chat.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: in.ClinicID, DoctorID: in.DoctorID})
	if err != nil {
		return nil, mapErr(err)
	}
	return &chat, nil
}

func (h *Handler) GetChat(ctx context.Context, in *GetChatRequest) (*domain.Chat, error) {
	chat, err := h.chat.GetChat(ctx, in.ChatID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &chat, nil
}

func (h *Handler) ListChats(ctx context.Context, in *ListChatsRequest) (*ListChatsResponse, error) {
	chats, err := h.chat.ListChats(ctx, in.ParticipantType, in.ParticipantID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ListChatsResponse{Chats: chats}, nil
}

func (h *Handler) ListMessages(ctx context.Context, in *ListMessagesRequest) (*domain.MessagePage, error) {
	page, err := h.chat.ListMessages(ctx, in.ChatID, domain.Page{
		Cursor: in.Cursor,
		Limit:  in.Limit,
		Order:  domain.Order(in.Order),
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &page, nil
}

// SendMessage рассылает сообщение живой комнате, как и REST.
func (h *Handler) SendMessage(ctx context.Context, in *SendMessageRequest) (*domain.MessageView, error) {
	msg, err := h.chat.SendMessage(ctx, *in)
	if err != nil {
		return nil, mapErr(err)
	}
	return &msg, nil
}

func (h *Handler) MarkRead(ctx context.Context, in *MarkReadRequest) (*domain.MessageView, error) {
	msg, err := h.chat.MarkRead(ctx, in.MessageID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &msg, nil
}

type Server struct {
	addr string
	gs   *grpc.Server
}

func New(addr string, chat ChatSvc, verifier identity.Verifier) *Server {
	if verifier == nil {
		verifier = identity.Trusted{}
	}
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(),
			requestIDUnaryInterceptor(),
			loggingUnaryInterceptor(),
			deadlineUnaryInterceptor(defaultCallTimeout),
			authUnaryInterceptor(verifier),
		),
	)
	RegisterChatServiceServer(gs, NewHandler(chat))

	return &Server{addr: addr, gs: gs}
}

func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	logger.L().Info("grpc listening", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.Serve(ln); err != nil {
			logger.L().Error("grpc serve stopped", slog.Any("err", err))
		}
	}()
	return nil
}

// Serve блокирует до Stop.
func (s *Server) Serve(ln net.Listener) error {
	return s.gs.Serve(ln)
}

func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()

	timeout := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logger.L().Error("grpc graceful stop timeout; forcing stop")
		s.gs.Stop()
	}

	logger.L().Info("grpc stopped")
}
