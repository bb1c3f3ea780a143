package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/service"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/httputil"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type ChatSvc interface {
	SendMessage(ctx context.Context, in service.SendMessageInput) (domain.MessageView, error)
}

type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	InboxBuffer    int
	ReadLimit      int64
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.InboxBuffer <= 0 {
		o.InboxBuffer = 16
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

// Server: чат-шлюз: принимает WS-соединения и на каждое запускает актор,
// который последовательно обрабатывает join/leave/send этого соединения.
type Server struct {
	upgrader websocket.Upgrader
	verifier identity.Verifier
	registry *Registry
	router   *Router
	chatSvc  ChatSvc
	opts     Options

	mu      sync.Mutex
	closing bool
	actors  sync.WaitGroup
}

func NewServer(reg *Registry, router *Router, chat ChatSvc, verifier identity.Verifier, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		registry: reg,
		router:   router,
		chatSvc:  chat,
		verifier: verifier,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// WS endpoint: GET /ws?token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ident, err := s.verifier.Verify(r.Context(), strings.TrimSpace(r.URL.Query().Get("token")))
	if err != nil {
		httputil.Error(w, http.StatusUnauthorized, domain.PublicMessage(err), nil)
		return
	}
	if !s.track() {
		httputil.Error(w, http.StatusServiceUnavailable, "server is shutting down", nil)
		return
	}
	defer s.actors.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		logger.FromContext(r.Context()).Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	id := uuid.NewString()
	log := logger.FromContext(r.Context()).With(slog.String("conn_id", id))
	if !ident.IsZero() {
		log = log.With(slog.String("participant", string(ident.Type)+":"+ident.ID))
	}

	sess := newSession(id, conn, s.opts.SendBuffer, log)
	s.registry.Register(sess)
	log.Info("ws connected")

	ctx := identity.WithIdentity(logger.WithContext(r.Context(), log), ident)
	inbox := make(chan Envelope, s.opts.InboxBuffer)

	go s.writeLoop(sess)
	go s.readLoop(sess, inbox)
	s.actor(ctx, sess, inbox)
}

func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.actors.Add(1)
	return true
}

// Shutdown закрывает все живые соединения (http.Server.Shutdown не трогает hijacked-сокеты)
// и ждёт, пока акторы доведут начатые отправки до конца. Хранилище можно закрывать после.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	for _, c := range s.registry.Conns() {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.actors.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ws shutdown: %w", ctx.Err())
	}
}

// actor обрабатывает события одного соединения строго по очереди.
func (s *Server) actor(ctx context.Context, sess *session, inbox <-chan Envelope) {
	for env := range inbox {
		if sess.closed() {
			// соединение уже сброшено: хвост очереди не исполняем
			continue
		}
		s.handle(ctx, sess, env)
	}
}

func (s *Server) handle(ctx context.Context, sess *session, env Envelope) {
	switch env.Type {
	case TypeJoin, TypeLeave:
		var p RoomPayload
		if err := decode(env.Payload, &p); err != nil {
			return
		}
		chatID := strings.TrimSpace(p.ChatID)
		if chatID == "" {
			return
		}
		if env.Type == TypeJoin {
			s.registry.Join(sess.id, chatID)
		} else {
			s.registry.Leave(sess.id, chatID)
		}
		sess.log.Debug("ws room "+env.Type, slog.String("chat_id", chatID))

	case TypeSend:
		var in service.SendMessageInput
		if err := decode(env.Payload, &in); err != nil {
			s.sendError(sess, domain.Invalidf("malformed send payload"))
			return
		}
		// начатая отправка доживает до конца даже при обрыве соединения
		if _, err := s.chatSvc.SendMessage(context.WithoutCancel(ctx), in); err != nil {
			s.sendError(sess, err)
		}

	default:
		s.sendError(sess, domain.Invalidf("unknown event type %q", env.Type))
	}
}

func (s *Server) sendError(sess *session, err error) {
	if domain.IsPublic(err) {
		sess.log.Debug("ws event rejected", slog.Any("err", err))
	} else {
		sess.log.Error("ws event failed", slog.Any("err", err))
	}

	frame, encErr := encode(TypeError, ErrorPayload{Message: domain.PublicMessage(err)})
	if encErr != nil {
		return
	}
	sess.Enqueue(frame)
}

// readLoop: единственный читатель сокета. Отключение всегда чистит реестр,
// даже если актор ещё занят отправкой.
func (s *Server) readLoop(sess *session, inbox chan<- Envelope) {
	defer func() {
		rooms := s.registry.DropConnection(sess.id)
		_ = sess.Close()
		close(inbox)
		sess.log.Info("ws disconnected", slog.Any("rooms", rooms))
	}()

	deadline := 2 * s.opts.PingInterval
	sess.conn.SetReadLimit(s.opts.ReadLimit)
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		// дедлайн взводится перед каждым чтением: ожидание свободного места в inbox
		// не считается молчанием клиента, его pong'и просто ждут в сокете
		_ = sess.conn.SetReadDeadline(time.Now().Add(deadline))
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !sess.closed() {
				sess.log.Debug("ws read failed", slog.Any("err", err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError(sess, domain.Invalidf("malformed event"))
			continue
		}

		select {
		case inbox <- env:
		case <-sess.done:
			return
		}
	}
}

// writeLoop: единственный писатель сокета: кадры из outbox и ping по таймеру.
func (s *Server) writeLoop(sess *session) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-sess.outbox:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				sess.log.Debug("ws write failed", slog.Any("err", err))
				_ = sess.Close()
				return
			}
		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				_ = sess.Close()
				return
			}
		case <-sess.done:
			return
		}
	}
}

// originChecker: пустой список или "*" разрешают всё; запросы без Origin (не браузер) пропускаются.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}
