package ws

import (
	"log/slog"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"
)

// Router рассылает кадры всем соединениям комнаты, включая отправителя.
type Router struct {
	registry *Registry
}

func NewRouter(reg *Registry) *Router {
	return &Router{registry: reg}
}

// Broadcast возвращает число соединений, принявших кадр в очередь.
func (r *Router) Broadcast(chatID string, frame []byte) int {
	delivered := 0
	for _, c := range r.registry.Members(chatID) {
		if c.Enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// BroadcastMessage кодирует сообщение один раз: все получатели видят одни и те же байты.
func (r *Router) BroadcastMessage(chatID string, msg domain.MessageView) {
	frame, err := encode(TypeReceive, msg)
	if err != nil {
		logger.L().Error("ws encode message failed", slog.String("chat_id", chatID), slog.Any("err", err))
		return
	}
	n := r.Broadcast(chatID, frame)
	logger.L().Debug("ws room broadcast",
		slog.String("chat_id", chatID),
		slog.String("message_id", msg.ID),
		slog.Int("receivers", n))
}
