//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/syncx"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"
)

type ChatStore interface {
	GetOrCreateChat(ctx context.Context, clinicID, doctorID string) (domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	ListChats(ctx context.Context, participant domain.Sender) ([]domain.Chat, error)
	AppendMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error)
	ListMessages(ctx context.Context, chatID string, page domain.Page) ([]domain.Message, string, error)
	GetMessage(ctx context.Context, messageID string) (domain.Message, error)
	MarkRead(ctx context.Context, messageID string) (domain.Message, error)
	Ping(ctx context.Context) error
}

type Directory interface {
	Profile(ctx context.Context, s domain.Sender) (domain.SenderProfile, error)
}

// Broadcaster доставляет сохранённое сообщение всем живым соединениям комнаты.
type Broadcaster interface {
	BroadcastMessage(chatID string, msg domain.MessageView)
}

const DefaultMaxContentLength = 4000

type ChatService struct {
	store ChatStore
	dir   Directory
	bus   Broadcaster
	locks *syncx.KeyedMutex

	maxContentLength int
}

func NewChatService(store ChatStore, dir Directory, bus Broadcaster, maxContentLength int) *ChatService {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	return &ChatService{
		store:            store,
		dir:              dir,
		bus:              bus,
		locks:            syncx.NewKeyedMutex(),
		maxContentLength: maxContentLength,
	}
}

// GetOrCreateChat возвращает единственный чат пары клиника-врач, создавая его при первом обращении.
func (s *ChatService) GetOrCreateChat(ctx context.Context, in GetOrCreateChatInput) (domain.Chat, error) {
	if err := validateStruct(in); err != nil {
		return domain.Chat{}, err
	}
	if id := identity.FromContext(ctx); !id.Allows(domain.ClinicSender(in.ClinicID)) && !id.Allows(domain.DoctorSender(in.DoctorID)) {
		return domain.Chat{}, domain.Forbiddenf("authenticated participant is not a side of this chat")
	}
	return s.store.GetOrCreateChat(ctx, in.ClinicID, in.DoctorID)
}

func (s *ChatService) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	if chatID == "" {
		return domain.Chat{}, domain.Invalidf("chatId is required")
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if err := identity.CheckChat(ctx, chat); err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

func (s *ChatService) ListChats(ctx context.Context, participantType, participantID string) ([]domain.Chat, error) {
	p, err := domain.NewSender(participantType, participantID)
	if err != nil {
		return nil, err
	}
	if err := identity.CheckSender(ctx, p); err != nil {
		return nil, err
	}
	return s.store.ListChats(ctx, p)
}

// SendMessage: общий путь для websocket, REST и gRPC: сохранить и разослать комнате.
// Лок по чату держится от append до broadcast, так что порядок рассылки совпадает с seq.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (domain.MessageView, error) {
	nm, err := s.prepare(in)
	if err != nil {
		return domain.MessageView{}, err
	}
	if err := identity.CheckSender(ctx, nm.Sender); err != nil {
		return domain.MessageView{}, err
	}

	unlock := s.locks.Lock(nm.ChatID)
	defer unlock()

	msg, err := s.store.AppendMessage(ctx, nm)
	if err != nil {
		return domain.MessageView{}, err
	}

	view := domain.MessageView{Message: msg, Profile: s.profile(ctx, msg.Sender)}
	s.bus.BroadcastMessage(msg.ChatID, view)

	logger.FromContext(ctx).Debug("message sent",
		slog.String("chat_id", msg.ChatID),
		slog.String("message_id", msg.ID),
		slog.Int64("seq", msg.Seq),
		slog.String("sender", msg.Sender.String()))
	return view, nil
}

func (s *ChatService) ListMessages(ctx context.Context, chatID string, page domain.Page) (domain.MessagePage, error) {
	if chatID == "" {
		return domain.MessagePage{}, domain.Invalidf("chatId is required")
	}
	if err := s.authorizeChat(ctx, chatID); err != nil {
		return domain.MessagePage{}, err
	}
	items, next, err := s.store.ListMessages(ctx, chatID, page)
	if err != nil {
		return domain.MessagePage{}, err
	}

	profiles := make(map[domain.Sender]domain.SenderProfile, 2)
	out := domain.MessagePage{Items: make([]domain.MessageView, 0, len(items)), NextCursor: next}
	for _, m := range items {
		p, ok := profiles[m.Sender]
		if !ok {
			p = s.profile(ctx, m.Sender)
			profiles[m.Sender] = p
		}
		out.Items = append(out.Items, domain.MessageView{Message: m, Profile: p})
	}
	return out, nil
}

// MarkRead идемпотентен.
func (s *ChatService) MarkRead(ctx context.Context, messageID string) (domain.MessageView, error) {
	if messageID == "" {
		return domain.MessageView{}, domain.Invalidf("messageId is required")
	}
	if !identity.FromContext(ctx).IsZero() {
		// чат сообщения не меняется, поэтому проверка до записи достаточна
		current, err := s.store.GetMessage(ctx, messageID)
		if err != nil {
			return domain.MessageView{}, err
		}
		if err := s.authorizeChat(ctx, current.ChatID); err != nil {
			return domain.MessageView{}, err
		}
	}
	msg, err := s.store.MarkRead(ctx, messageID)
	if err != nil {
		return domain.MessageView{}, err
	}
	return domain.MessageView{Message: msg, Profile: s.profile(ctx, msg.Sender)}, nil
}

func (s *ChatService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// -------- helpers --------

// authorizeChat: в доверенном режиме лишнего чтения чата не делаем.
func (s *ChatService) authorizeChat(ctx context.Context, chatID string) error {
	if identity.FromContext(ctx).IsZero() {
		return nil
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	return identity.CheckChat(ctx, chat)
}

func (s *ChatService) prepare(in SendMessageInput) (domain.NewMessage, error) {
	if err := validateStruct(in); err != nil {
		return domain.NewMessage{}, err
	}
	sender, err := domain.NewSender(in.SenderType, in.SenderID)
	if err != nil {
		return domain.NewMessage{}, err
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return domain.NewMessage{}, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return domain.NewMessage{}, domain.Invalidf("content is longer than %d characters", s.maxContentLength)
	}

	return domain.NewMessage{
		ChatID:     in.ChatID,
		Sender:     sender,
		Content:    content,
		Attachment: in.Attachment.toDomain(),
	}, nil
}

// profile не валит отправку: неизвестный отправитель получает пустое имя.
func (s *ChatService) profile(ctx context.Context, sender domain.Sender) domain.SenderProfile {
	p, err := s.dir.Profile(ctx, sender)
	if err != nil {
		logger.FromContext(ctx).Debug("sender profile unresolved",
			slog.String("sender", sender.String()), slog.Any("err", err))
		return domain.SenderProfile{}
	}
	return p
}
