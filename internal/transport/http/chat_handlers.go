package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/service"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

type ChatSvc interface {
	GetOrCreateChat(ctx context.Context, in service.GetOrCreateChatInput) (domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	ListChats(ctx context.Context, participantType, participantID string) ([]domain.Chat, error)
	SendMessage(ctx context.Context, in service.SendMessageInput) (domain.MessageView, error)
	ListMessages(ctx context.Context, chatID string, page domain.Page) (domain.MessagePage, error)
	MarkRead(ctx context.Context, messageID string) (domain.MessageView, error)
	Ping(ctx context.Context) error
}

type ChatHandlers struct {
	Chat ChatSvc
}

// maxBody: с запасом под content и вложение.
const maxBody = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid JSON", map[string]any{"reason": err.Error()})
		return false
	}
	return true
}

// POST /get-or-create-chat
func (h *ChatHandlers) GetOrCreateChat(w http.ResponseWriter, r *http.Request) {
	var in service.GetOrCreateChatInput
	if !decodeBody(w, r, &in) {
		return
	}

	chat, err := h.Chat.GetOrCreateChat(r.Context(), in)
	if err != nil {
		writeErr(w, r, "get or create chat", err)
		return
	}

	httputil.OK(w, chat)
}

// GET /chats/{chatId}
func (h *ChatHandlers) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.Chat.GetChat(r.Context(), strings.TrimSpace(chi.URLParam(r, "chatId")))
	if err != nil {
		writeErr(w, r, "get chat", err)
		return
	}

	httputil.OK(w, chat)
}

// GET /chats?participantType=&participantId=
func (h *ChatHandlers) ListChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chats, err := h.Chat.ListChats(r.Context(), q.Get("participantType"), q.Get("participantId"))
	if err != nil {
		writeErr(w, r, "list chats", err)
		return
	}

	httputil.OK(w, chats)
}

// GET /messages/{chatId}?cursor=&limit=&order=
func (h *ChatHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := domain.Page{
		Cursor: q.Get("cursor"),
		Order:  domain.Order(q.Get("order")),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		page.Limit = n
	}

	out, err := h.Chat.ListMessages(r.Context(), strings.TrimSpace(chi.URLParam(r, "chatId")), page)
	if err != nil {
		writeErr(w, r, "list messages", err)
		return
	}

	httputil.OK(w, out)
}

// POST /send-message
// Сообщение рассылается живой комнате так же, как при отправке по WS.
func (h *ChatHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in service.SendMessageInput
	if !decodeBody(w, r, &in) {
		return
	}

	msg, err := h.Chat.SendMessage(r.Context(), in)
	if err != nil {
		writeErr(w, r, "send message", err)
		return
	}

	httputil.Created(w, msg)
}

// PATCH /messages/{messageId}/read
func (h *ChatHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	msg, err := h.Chat.MarkRead(r.Context(), strings.TrimSpace(chi.URLParam(r, "messageId")))
	if err != nil {
		writeErr(w, r, "mark read", err)
		return
	}

	httputil.OK(w, msg)
}

// GET /readyz
func (h *ChatHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.Chat.Ping(r.Context()); err != nil {
		writeErr(w, r, "readiness", err)
		return
	}
	httputil.OK(w, map[string]string{"status": "ready"})
}
