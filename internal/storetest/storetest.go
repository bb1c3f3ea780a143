// Package storetest: общий набор проверок для реализаций хранилища чатов.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Store interface {
	GetOrCreateChat(ctx context.Context, clinicID, doctorID string) (domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	ListChats(ctx context.Context, participant domain.Sender) ([]domain.Chat, error)
	AppendMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error)
	ListMessages(ctx context.Context, chatID string, page domain.Page) ([]domain.Message, string, error)
	GetMessage(ctx context.Context, messageID string) (domain.Message, error)
	MarkRead(ctx context.Context, messageID string) (domain.Message, error)
}

// Run прогоняет все проверки; newStore вызывается на каждый подтест.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GetOrCreateChat is idempotent", func(t *testing.T) { testGetOrCreate(t, newStore(t)) })
	t.Run("GetOrCreateChat under race", func(t *testing.T) { testGetOrCreateRace(t, newStore(t)) })
	t.Run("append then list", func(t *testing.T) { testAppendAndList(t, newStore(t)) })
	t.Run("pagination", func(t *testing.T) { testPagination(t, newStore(t)) })
	t.Run("forbidden append is not persisted", func(t *testing.T) { testForbidden(t, newStore(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("mark read is idempotent", func(t *testing.T) { testMarkRead(t, newStore(t)) })
	t.Run("concurrent appends keep a total order", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("list chats by last message", func(t *testing.T) { testListChats(t, newStore(t)) })
	t.Run("attachment", func(t *testing.T) { testAttachment(t, newStore(t)) })
}

func ids() (clinicID, doctorID string) {
	suffix := uuid.NewString()[:8]
	return "C-" + suffix, "D-" + suffix
}

func testGetOrCreate(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()

	first, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, clinicID, first.ClinicID)
	require.Equal(t, doctorID, first.DoctorID)

	second, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	other, err := s.GetOrCreateChat(ctx, clinicID, doctorID+"-x")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)

	_, err = s.GetOrCreateChat(ctx, "", doctorID)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func testGetOrCreateRace(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()

	const n = 16
	got := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			chat, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
			got[i], errs[i] = chat.ID, err
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, got[0], got[i])
	}
}

func testAppendAndList(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()
	chat, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)

	const n = 12
	var last domain.Message
	for i := 0; i < n; i++ {
		sender := domain.ClinicSender(clinicID)
		if i%2 == 1 {
			sender = domain.DoctorSender(doctorID)
		}
		last, err = s.AppendMessage(ctx, domain.NewMessage{
			ChatID:  chat.ID,
			Sender:  sender,
			Content: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		require.Equal(t, int64(i+1), last.Seq)
		require.False(t, last.Read)
	}

	items, next, err := s.ListMessages(ctx, chat.ID, domain.Page{Limit: 100})
	require.NoError(t, err)
	require.Empty(t, next)
	require.Len(t, items, n)
	for i, m := range items {
		require.Equal(t, int64(i+1), m.Seq)
		require.Equal(t, fmt.Sprintf("message %d", i), m.Content)
		if i > 0 {
			require.False(t, m.CreatedAt.Before(items[i-1].CreatedAt))
		}
	}
	require.True(t, items[1].Sender.IsDoctor())
	require.Equal(t, doctorID, items[1].Sender.ID())

	chat, err = s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, int64(n), chat.LastSeq)
	require.True(t, chat.LastMessageAt.Equal(last.CreatedAt),
		"lastMessageAt %s != last createdAt %s", chat.LastMessageAt, last.CreatedAt)

	_, err = s.AppendMessage(ctx, domain.NewMessage{ChatID: chat.ID, Sender: domain.ClinicSender(clinicID)})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func testPagination(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()
	chat, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, err := s.AppendMessage(ctx, domain.NewMessage{
			ChatID: chat.ID, Sender: domain.DoctorSender(doctorID), Content: fmt.Sprintf("m%d", i+1),
		})
		require.NoError(t, err)
	}

	var (
		seen   []int64
		cursor string
	)
	for {
		items, next, err := s.ListMessages(ctx, chat.ID, domain.Page{Cursor: cursor, Limit: 10})
		require.NoError(t, err)
		for _, m := range items {
			seen = append(seen, m.Seq)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	require.Len(t, seen, 25)
	for i, seq := range seen {
		require.Equal(t, int64(i+1), seq)
	}

	newest, next, err := s.ListMessages(ctx, chat.ID, domain.Page{Limit: 5, Order: domain.OrderDesc})
	require.NoError(t, err)
	require.NotEmpty(t, next)
	require.Equal(t, []int64{25, 24, 23, 22, 21}, seqs(newest))

	older, _, err := s.ListMessages(ctx, chat.ID, domain.Page{Limit: 5, Order: domain.OrderDesc, Cursor: next})
	require.NoError(t, err)
	require.Equal(t, []int64{20, 19, 18, 17, 16}, seqs(older))

	_, _, err = s.ListMessages(ctx, chat.ID, domain.Page{Cursor: "not-a-cursor"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func testForbidden(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()
	chat, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, domain.NewMessage{
		ChatID: chat.ID, Sender: domain.DoctorSender("D-stranger"), Content: "hi",
	})
	require.ErrorIs(t, err, domain.ErrForbidden)

	// id клиники, но в роли врача: тоже не участник
	_, err = s.AppendMessage(ctx, domain.NewMessage{
		ChatID: chat.ID, Sender: domain.DoctorSender(clinicID), Content: "hi",
	})
	require.ErrorIs(t, err, domain.ErrForbidden)

	items, _, err := s.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Empty(t, items)

	after, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Zero(t, after.LastSeq)
	require.True(t, after.LastMessageAt.Equal(chat.LastMessageAt))
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetChat(ctx, "missing-chat")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.AppendMessage(ctx, domain.NewMessage{
		ChatID: "missing-chat", Sender: domain.ClinicSender("C1"), Content: "hi",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = s.ListMessages(ctx, "missing-chat", domain.Page{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.MarkRead(ctx, "missing-message")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testMarkRead(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()
	chat, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)

	msg, err := s.AppendMessage(ctx, domain.NewMessage{
		ChatID: chat.ID, Sender: domain.ClinicSender(clinicID), Content: "please read",
	})
	require.NoError(t, err)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, chat.ID, got.ChatID)
	require.False(t, got.Read)

	_, err = s.GetMessage(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrMessageNotFound)

	first, err := s.MarkRead(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, first.Read)

	second, err := s.MarkRead(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, second.Read)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Seq, second.Seq)

	items, _, err := s.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].Read)
}

func testConcurrentAppends(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()
	chat, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.AppendMessage(ctx, domain.NewMessage{
					ChatID: chat.ID, Sender: domain.ClinicSender(clinicID), Content: fmt.Sprintf("w%d-%d", w, i),
				})
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	items, _, err := s.ListMessages(ctx, chat.ID, domain.Page{Limit: 100})
	require.NoError(t, err)
	require.Len(t, items, writers*perWriter)
	for i, m := range items {
		require.Equal(t, int64(i+1), m.Seq)
		if i > 0 {
			require.False(t, m.CreatedAt.Before(items[i-1].CreatedAt))
		}
	}
}

func testListChats(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()

	older, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)
	newer, err := s.GetOrCreateChat(ctx, clinicID, doctorID+"-2")
	require.NoError(t, err)

	// свежая активность в «старом» чате поднимает его наверх
	_, err = s.AppendMessage(ctx, domain.NewMessage{
		ChatID: older.ID, Sender: domain.DoctorSender(doctorID), Content: "bump",
	})
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, domain.ClinicSender(clinicID))
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, older.ID, chats[0].ID)
	require.Equal(t, newer.ID, chats[1].ID)

	chats, err = s.ListChats(ctx, domain.DoctorSender(doctorID))
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, older.ID, chats[0].ID)
}

func testAttachment(t *testing.T, s Store) {
	ctx := context.Background()
	clinicID, doctorID := ids()
	chat, err := s.GetOrCreateChat(ctx, clinicID, doctorID)
	require.NoError(t, err)

	att := &domain.Attachment{
		URL:         "https://files.example.com/report.pdf",
		FileName:    "report.pdf",
		ContentType: "application/pdf",
	}
	msg, err := s.AppendMessage(ctx, domain.NewMessage{
		ChatID: chat.ID, Sender: domain.DoctorSender(doctorID), Content: "see attached", Attachment: att,
	})
	require.NoError(t, err)
	require.Equal(t, att, msg.Attachment)

	items, _, err := s.ListMessages(ctx, chat.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, att, items[0].Attachment)
}

func seqs(items []domain.Message) []int64 {
	out := make([]int64, 0, len(items))
	for _, m := range items {
		out = append(out, m.Seq)
	}
	return out
}
