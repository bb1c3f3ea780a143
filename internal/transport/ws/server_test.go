package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/badgerstore"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/directory"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/service"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/transport/ws"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const seed = `
clinics:
  - {id: C1, name: Sunrise Clinic}
doctors:
  - {id: D1, name: Dr. Jane Roe, specialization: Cardiology}
`

type env struct {
	svc *service.ChatService
	reg *ws.Registry
	srv *ws.Server
	url string
}

type envConfig struct {
	opts   ws.Options
	maxLen int
	// wrap позволяет подменить путь отправки, например замедлить его
	wrap func(ws.ChatSvc) ws.ChatSvc
}

func newEnv(t *testing.T, verifier identity.Verifier) env {
	return newEnvWith(t, verifier, envConfig{})
}

func newEnvWith(t *testing.T, verifier identity.Verifier, cfg envConfig) env {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir, err := directory.ParseStatic([]byte(seed))
	require.NoError(t, err)

	reg := ws.NewRegistry()
	router := ws.NewRouter(reg)
	svc := service.NewChatService(badgerstore.New(db), dir, router, cfg.maxLen)

	var chat ws.ChatSvc = svc
	if cfg.wrap != nil {
		chat = cfg.wrap(svc)
	}
	srv := ws.NewServer(reg, router, chat, verifier, cfg.opts)

	hs := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		hs.Close()
	})

	return env{svc: svc, reg: reg, srv: srv, url: "ws" + strings.TrimPrefix(hs.URL, "http")}
}

// gatedChat задерживает каждую отправку: на delay и/или до сигнала в release.
type gatedChat struct {
	ws.ChatSvc
	delay   time.Duration
	started chan struct{}
	release chan struct{}
}

func (g *gatedChat) SendMessage(ctx context.Context, in service.SendMessageInput) (domain.MessageView, error) {
	if g.started != nil {
		select {
		case g.started <- struct{}{}:
		default:
		}
	}
	if g.release != nil {
		<-g.release
	}
	time.Sleep(g.delay)
	return g.ChatSvc.SendMessage(ctx, in)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ws.Envelope{Type: typ, Payload: raw}))
}

func next(t *testing.T, conn *websocket.Conn) ws.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var e ws.Envelope
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

// expectSilence: за окно ожидания в соединение ничего не пришло.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	require.True(t, ne.Timeout())
}

// pump читает соединение в фоне; пока он работает, клиент отвечает на ping.
func pump(conn *websocket.Conn) <-chan ws.Envelope {
	out := make(chan ws.Envelope, 64)
	go func() {
		defer close(out)
		for {
			var e ws.Envelope
			if err := conn.ReadJSON(&e); err != nil {
				return
			}
			out <- e
		}
	}()
	return out
}

func waitMembers(t *testing.T, reg *ws.Registry, chatID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(reg.Members(chatID)) == n }, 3*time.Second, 10*time.Millisecond)
}

func TestGateway_SendReachesWholeRoom(t *testing.T) {
	e := newEnv(t, identity.Trusted{})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	clinic := dial(t, e.url)
	doctor := dial(t, e.url)
	emit(t, clinic, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	emit(t, doctor, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 2)

	emit(t, doctor, ws.TypeSend, map[string]string{
		"chatId": chat.ID, "content": "Hello", "senderId": "D1", "senderType": "doctor",
	})

	var views []map[string]any
	for _, conn := range []*websocket.Conn{clinic, doctor} {
		got := next(t, conn)
		require.Equal(t, ws.TypeReceive, got.Type)

		var v map[string]any
		require.NoError(t, json.Unmarshal(got.Payload, &v))
		require.Equal(t, "Hello", v["content"])
		require.Equal(t, "D1", v["senderDoctorId"])
		require.Equal(t, "doctor", v["senderType"])
		require.Equal(t, false, v["read"])
		require.Equal(t, "Dr. Jane Roe", v["senderName"])
		require.Equal(t, "Cardiology", v["senderSpecialization"])
		views = append(views, v)
	}
	require.Equal(t, views[0], views[1])

	page, err := e.svc.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	updated, err := e.svc.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), updated.LastSeq)
	require.True(t, updated.LastMessageAt.Equal(page.Items[0].CreatedAt))
}

func TestGateway_BroadcastMatchesHistoryBytes(t *testing.T) {
	e := newEnv(t, identity.Trusted{})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	clinic := dial(t, e.url)
	emit(t, clinic, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 1)

	emit(t, clinic, ws.TypeSend, map[string]any{
		"chatId": chat.ID, "content": "<b>results</b> & notes", "senderId": "C1", "senderType": "clinic",
		"attachment": map[string]string{
			"url": "https://files.example.com/r.pdf", "fileName": "r.pdf", "contentType": "application/pdf",
		},
	})
	got := next(t, clinic)
	require.Equal(t, ws.TypeReceive, got.Type)

	page, err := e.svc.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	fromList, err := json.Marshal(page.Items[0])
	require.NoError(t, err)

	require.Equal(t, string(fromList), string(got.Payload))
}

func TestGateway_InvalidSenderTypeOnlyErrorsSender(t *testing.T) {
	e := newEnv(t, identity.Trusted{})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	clinic := dial(t, e.url)
	doctor := dial(t, e.url)
	emit(t, clinic, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	emit(t, doctor, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 2)

	emit(t, doctor, ws.TypeSend, map[string]string{
		"chatId": chat.ID, "content": "Hello", "senderId": "D1", "senderType": "nurse",
	})

	got := next(t, doctor)
	require.Equal(t, ws.TypeError, got.Type)
	var p ws.ErrorPayload
	require.NoError(t, json.Unmarshal(got.Payload, &p))
	require.Contains(t, p.Message, "senderType")

	expectSilence(t, clinic)

	page, err := e.svc.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Empty(t, page.Items)

	unchanged, err := e.svc.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Zero(t, unchanged.LastSeq)
	require.True(t, unchanged.LastMessageAt.Equal(chat.LastMessageAt))
}

func TestGateway_ScopedErrors(t *testing.T) {
	e := newEnv(t, identity.Trusted{})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	conn := dial(t, e.url)
	emit(t, conn, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})

	cases := []struct {
		name    string
		typ     string
		payload any
		want    string
	}{
		{"not a participant", ws.TypeSend, map[string]string{
			"chatId": chat.ID, "content": "hi", "senderId": "D2", "senderType": "doctor",
		}, "participant"},
		{"unknown chat", ws.TypeSend, map[string]string{
			"chatId": "chat-404", "content": "hi", "senderId": "D1", "senderType": "doctor",
		}, "not found"},
		{"missing content", ws.TypeSend, map[string]string{
			"chatId": chat.ID, "senderId": "D1", "senderType": "doctor",
		}, "empty"},
		{"unknown event", "typing", map[string]string{}, "unknown event type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			emit(t, conn, tc.typ, tc.payload)
			got := next(t, conn)
			require.Equal(t, ws.TypeError, got.Type)
			var p ws.ErrorPayload
			require.NoError(t, json.Unmarshal(got.Payload, &p))
			require.Contains(t, p.Message, tc.want)
		})
	}
}

func TestGateway_JoinWithoutChatIDIsIgnored(t *testing.T) {
	e := newEnv(t, identity.Trusted{})

	conn := dial(t, e.url)
	emit(t, conn, ws.TypeJoin, map[string]string{})
	emit(t, conn, ws.TypeLeave, map[string]string{"chatId": "  "})
	expectSilence(t, conn)
	require.Eventually(t, func() bool { return len(e.reg.Conns()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestGateway_LeaveStopsDelivery(t *testing.T) {
	e := newEnv(t, identity.Trusted{})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	clinic := dial(t, e.url)
	doctor := dial(t, e.url)
	emit(t, clinic, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	emit(t, doctor, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 2)

	emit(t, clinic, ws.TypeLeave, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 1)

	emit(t, doctor, ws.TypeSend, map[string]string{
		"chatId": chat.ID, "content": "still there?", "senderId": "D1", "senderType": "doctor",
	})
	require.Equal(t, ws.TypeReceive, next(t, doctor).Type)
	expectSilence(t, clinic)
}

func TestGateway_DisconnectDropsMembership(t *testing.T) {
	e := newEnv(t, identity.Trusted{})

	conn := dial(t, e.url)
	emit(t, conn, ws.TypeJoin, ws.RoomPayload{ChatID: "chat-1"})
	emit(t, conn, ws.TypeJoin, ws.RoomPayload{ChatID: "chat-2"})
	waitMembers(t, e.reg, "chat-2", 1)

	require.NoError(t, conn.Close())
	waitMembers(t, e.reg, "chat-1", 0)
	waitMembers(t, e.reg, "chat-2", 0)
	require.Eventually(t, func() bool { return len(e.reg.Conns()) == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestGateway_TokenIdentity(t *testing.T) {
	verifier, err := identity.NewJWTVerifier("test-secret", "", "", 0)
	require.NoError(t, err)
	e := newEnv(t, verifier)
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := verifier.Sign(identity.Identity{Type: domain.ParticipantDoctor, ID: "D1"}, time.Minute)
	require.NoError(t, err)
	doctor := dial(t, e.url+"?token="+token)
	emit(t, doctor, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 1)

	emit(t, doctor, ws.TypeSend, map[string]string{
		"chatId": chat.ID, "content": "spoof", "senderId": "C1", "senderType": "clinic",
	})
	got := next(t, doctor)
	require.Equal(t, ws.TypeError, got.Type)

	emit(t, doctor, ws.TypeSend, map[string]string{
		"chatId": chat.ID, "content": "mine", "senderId": "D1", "senderType": "doctor",
	})
	require.Equal(t, ws.TypeReceive, next(t, doctor).Type)
}

func TestGateway_BackpressureDoesNotTripKeepAlive(t *testing.T) {
	e := newEnvWith(t, identity.Trusted{}, envConfig{
		opts: ws.Options{PingInterval: 100 * time.Millisecond, InboxBuffer: 1},
		wrap: func(c ws.ChatSvc) ws.ChatSvc { return &gatedChat{ChatSvc: c, delay: 300 * time.Millisecond} },
	})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	conn := dial(t, e.url)
	frames := pump(conn)
	emit(t, conn, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 1)

	// очередь событий занята дольше 2*PingInterval, но клиент жив и отвечает на ping
	const n = 5
	for i := range n {
		emit(t, conn, ws.TypeSend, map[string]string{
			"chatId": chat.ID, "content": fmt.Sprintf("m%d", i), "senderId": "C1", "senderType": "clinic",
		})
	}

	for i := range n {
		select {
		case got, ok := <-frames:
			require.True(t, ok, "connection dropped after %d messages", i)
			require.Equal(t, ws.TypeReceive, got.Type)
		case <-time.After(5 * time.Second):
			t.Fatalf("message %d not delivered", i)
		}
	}
	require.Len(t, e.reg.Conns(), 1)

	page, err := e.svc.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, n)
}

func TestGateway_SilentPeerIsDropped(t *testing.T) {
	e := newEnvWith(t, identity.Trusted{}, envConfig{
		opts: ws.Options{PingInterval: 200 * time.Millisecond},
	})

	// клиент ничего не читает, значит ping остаются без pong
	conn := dial(t, e.url)
	emit(t, conn, ws.TypeJoin, ws.RoomPayload{ChatID: "chat-1"})
	waitMembers(t, e.reg, "chat-1", 1)

	require.Eventually(t, func() bool { return len(e.reg.Conns()) == 0 }, 3*time.Second, 10*time.Millisecond)
	require.Empty(t, e.reg.Members("chat-1"))
}

func TestGateway_SlowConsumerIsDisconnected(t *testing.T) {
	e := newEnvWith(t, identity.Trusted{}, envConfig{
		opts:   ws.Options{SendBuffer: 1, WriteTimeout: time.Minute},
		maxLen: 64 << 10,
	})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	// клиент не читает: сокет забивается, writeLoop встаёт, outbox переполняется
	slow := dial(t, e.url)
	emit(t, slow, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 1)

	content := strings.Repeat("x", 64<<10)
	for i := 0; i < 1000 && len(e.reg.Members(chat.ID)) > 0; i++ {
		_, err := e.svc.SendMessage(ctx, service.SendMessageInput{
			ChatID: chat.ID, Content: content, SenderID: "D1", SenderType: "doctor",
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(e.reg.Conns()) == 0 }, 5*time.Second, 10*time.Millisecond)
	require.Empty(t, e.reg.Members(chat.ID))
}

func TestGateway_SendInFlightSurvivesDisconnect(t *testing.T) {
	gate := &gatedChat{started: make(chan struct{}, 1), release: make(chan struct{})}
	e := newEnvWith(t, identity.Trusted{}, envConfig{
		wrap: func(c ws.ChatSvc) ws.ChatSvc { gate.ChatSvc = c; return gate },
	})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	clinic := dial(t, e.url)
	doctor := dial(t, e.url)
	emit(t, clinic, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	emit(t, doctor, ws.TypeJoin, ws.RoomPayload{ChatID: chat.ID})
	waitMembers(t, e.reg, chat.ID, 2)

	emit(t, clinic, ws.TypeSend, map[string]string{
		"chatId": chat.ID, "content": "sent before hanging up", "senderId": "C1", "senderType": "clinic",
	})
	<-gate.started

	require.NoError(t, clinic.Close())
	waitMembers(t, e.reg, chat.ID, 1)
	close(gate.release)

	got := next(t, doctor)
	require.Equal(t, ws.TypeReceive, got.Type)
	var v map[string]any
	require.NoError(t, json.Unmarshal(got.Payload, &v))
	require.Equal(t, "sent before hanging up", v["content"])

	page, err := e.svc.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestGateway_ShutdownWaitsForInFlightSends(t *testing.T) {
	gate := &gatedChat{started: make(chan struct{}, 1), release: make(chan struct{})}
	e := newEnvWith(t, identity.Trusted{}, envConfig{
		wrap: func(c ws.ChatSvc) ws.ChatSvc { gate.ChatSvc = c; return gate },
	})
	ctx := context.Background()

	chat, err := e.svc.GetOrCreateChat(ctx, service.GetOrCreateChatInput{ClinicID: "C1", DoctorID: "D1"})
	require.NoError(t, err)

	conn := dial(t, e.url)
	emit(t, conn, ws.TypeSend, map[string]string{
		"chatId": chat.ID, "content": "last words", "senderId": "C1", "senderType": "clinic",
	})
	<-gate.started

	// пока отправка висит, Shutdown с истёкшим бюджетом возвращает ошибку
	expired, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, e.srv.Shutdown(expired), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- e.srv.Shutdown(ctx) }()
	select {
	case <-done:
		t.Fatal("shutdown returned while a send was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not finish")
	}

	page, err := e.svc.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	// новые соединения после остановки не принимаются
	_, resp, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
