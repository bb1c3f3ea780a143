package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/badgerstore"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/directory"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/mocks"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/service"
	chathttp "github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/transport/http"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const seed = `
clinics:
  - {id: C1, name: Sunrise Clinic}
doctors:
  - {id: D1, name: Dr. Jane Roe, specialization: Cardiology}
`

type apiError struct {
	Error struct {
		Message string         `json:"message"`
		Meta    map[string]any `json:"meta"`
	} `json:"error"`
}

type fixture struct {
	t   *testing.T
	bus *mocks.MockBroadcaster
	srv *httptest.Server
}

func newFixture(t *testing.T, verifier identity.Verifier) *fixture {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir, err := directory.ParseStatic([]byte(seed))
	require.NoError(t, err)

	bus := mocks.NewMockBroadcaster(gomock.NewController(t))
	svc := service.NewChatService(badgerstore.New(db), dir, bus, 0)

	srv := httptest.NewServer(chathttp.NewRouter(chathttp.Deps{Chat: svc, Verifier: verifier}))
	t.Cleanup(srv.Close)

	return &fixture{t: t, bus: bus, srv: srv}
}

func (f *fixture) do(method, path string, body any, token string) *http.Response {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Data
}

func decodeErr(t *testing.T, resp *http.Response) apiError {
	t.Helper()
	var out apiError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *fixture) createChat(clinicID, doctorID string) domain.Chat {
	f.t.Helper()
	resp := f.do(http.MethodPost, "/api/chat/get-or-create-chat",
		map[string]string{"clinicId": clinicID, "doctorId": doctorID}, "")
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
	return decodeData[domain.Chat](f.t, resp)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil, "").StatusCode)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz", nil, "").StatusCode)
}

func TestGetOrCreateChat(t *testing.T) {
	f := newFixture(t, nil)

	first := f.createChat("C1", "D1")
	second := f.createChat("C1", "D1")
	require.NotEmpty(t, first.ID)
	require.Equal(t, first.ID, second.ID)

	resp := f.do(http.MethodPost, "/api/chat/get-or-create-chat", map[string]string{"clinicId": "C1"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "doctorId is required", decodeErr(t, resp).Error.Message)

	resp = f.do(http.MethodPost, "/api/chat/get-or-create-chat", "not an object", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/chat/chats/"+first.ID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, first.ID, decodeData[domain.Chat](t, resp).ID)

	resp = f.do(http.MethodGet, "/api/chat/chats/nope", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMessage_BroadcastsAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	chat := f.createChat("C1", "D1")

	f.bus.EXPECT().BroadcastMessage(chat.ID, gomock.Any()).Times(1)

	resp := f.do(http.MethodPost, "/api/chat/send-message", map[string]string{
		"chatId": chat.ID, "content": "Hello", "senderId": "D1", "senderType": "doctor",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sent := decodeData[map[string]any](t, resp)
	require.Equal(t, "Hello", sent["content"])
	require.Equal(t, "D1", sent["senderDoctorId"])
	require.Equal(t, false, sent["read"])
	require.Equal(t, "Dr. Jane Roe", sent["senderName"])

	resp = f.do(http.MethodGet, "/api/chat/messages/"+chat.ID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeData[domain.MessagePage](t, resp)
	require.Len(t, page.Items, 1)
	require.Equal(t, sent["id"], page.Items[0].ID)
	require.Empty(t, page.NextCursor)
}

func TestSendMessage_Errors(t *testing.T) {
	f := newFixture(t, nil)
	chat := f.createChat("C1", "D1")

	f.bus.EXPECT().BroadcastMessage(gomock.Any(), gomock.Any()).Times(0)

	cases := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"nurse", map[string]string{"chatId": chat.ID, "content": "Hello", "senderId": "D1", "senderType": "nurse"}, http.StatusBadRequest},
		{"missing sender", map[string]string{"chatId": chat.ID, "content": "Hello", "senderType": "doctor"}, http.StatusBadRequest},
		{"unknown chat", map[string]string{"chatId": "nope", "content": "Hello", "senderId": "D1", "senderType": "doctor"}, http.StatusNotFound},
		{"outsider", map[string]string{"chatId": chat.ID, "content": "Hello", "senderId": "C2", "senderType": "clinic"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(http.MethodPost, "/api/chat/send-message", tc.body, "")
			require.Equal(t, tc.status, resp.StatusCode)
			require.NotEmpty(t, decodeErr(t, resp).Error.Message)
		})
	}

	resp := f.do(http.MethodGet, "/api/chat/messages/"+chat.ID, nil, "")
	require.Empty(t, decodeData[domain.MessagePage](t, resp).Items)
}

func TestListMessages_Pagination(t *testing.T) {
	f := newFixture(t, nil)
	chat := f.createChat("C1", "D1")

	f.bus.EXPECT().BroadcastMessage(chat.ID, gomock.Any()).Times(5)
	for i := 0; i < 5; i++ {
		resp := f.do(http.MethodPost, "/api/chat/send-message", map[string]string{
			"chatId": chat.ID, "content": "msg", "senderId": "C1", "senderType": "clinic",
		}, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := f.do(http.MethodGet, "/api/chat/messages/"+chat.ID+"?limit=2", nil, "")
	first := decodeData[domain.MessagePage](t, resp)
	require.Len(t, first.Items, 2)
	require.Equal(t, int64(1), first.Items[0].Seq)
	require.NotEmpty(t, first.NextCursor)

	resp = f.do(http.MethodGet, "/api/chat/messages/"+chat.ID+"?limit=2&cursor="+first.NextCursor, nil, "")
	second := decodeData[domain.MessagePage](t, resp)
	require.Len(t, second.Items, 2)
	require.Equal(t, int64(3), second.Items[0].Seq)

	resp = f.do(http.MethodGet, "/api/chat/messages/"+chat.ID+"?limit=2&order=desc", nil, "")
	desc := decodeData[domain.MessagePage](t, resp)
	require.Equal(t, int64(5), desc.Items[0].Seq)

	for _, q := range []string{"?limit=abc", "?limit=-1", "?cursor=zzzz", "?order=sideways"} {
		resp = f.do(http.MethodGet, "/api/chat/messages/"+chat.ID+q, nil, "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}

	resp = f.do(http.MethodGet, "/api/chat/messages/nope", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t, nil)
	chat := f.createChat("C1", "D1")

	f.bus.EXPECT().BroadcastMessage(chat.ID, gomock.Any())
	resp := f.do(http.MethodPost, "/api/chat/send-message", map[string]string{
		"chatId": chat.ID, "content": "ping", "senderId": "C1", "senderType": "clinic",
	}, "")
	sent := decodeData[domain.MessageView](t, resp)

	for i := 0; i < 2; i++ {
		resp = f.do(http.MethodPatch, "/api/chat/messages/"+sent.ID+"/read", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.True(t, decodeData[domain.MessageView](t, resp).Read)
	}

	resp = f.do(http.MethodPatch, "/api/chat/messages/nope/read", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListChats(t *testing.T) {
	f := newFixture(t, nil)
	f.createChat("C1", "D1")
	f.createChat("C1", "D2")
	f.createChat("C2", "D1")

	resp := f.do(http.MethodGet, "/api/chat/chats?participantType=clinic&participantId=C1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decodeData[[]domain.Chat](t, resp), 2)

	resp = f.do(http.MethodGet, "/api/chat/chats?participantType=nurse&participantId=N1", nil, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJWTIdentity(t *testing.T) {
	verifier, err := identity.NewJWTVerifier("test-secret", "", "", 0)
	require.NoError(t, err)
	f := newFixture(t, verifier)

	resp := f.do(http.MethodPost, "/api/chat/get-or-create-chat",
		map[string]string{"clinicId": "C1", "doctorId": "D1"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := verifier.Sign(identity.Identity{Type: domain.ParticipantClinic, ID: "C1"}, time.Minute)
	require.NoError(t, err)

	resp = f.do(http.MethodPost, "/api/chat/get-or-create-chat",
		map[string]string{"clinicId": "C1", "doctorId": "D1"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chat := decodeData[domain.Chat](t, resp)

	resp = f.do(http.MethodPost, "/api/chat/send-message", map[string]string{
		"chatId": chat.ID, "content": "as doctor", "senderId": "D1", "senderType": "doctor",
	}, token)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// health не требует токена
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil, "").StatusCode)
}
