// Package badgerstore хранит чаты во встроенной BadgerDB (одна нода, dev, тесты).
package badgerstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/syncx"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type Store struct {
	db    *badger.DB
	locks *syncx.KeyedMutex
	now   func() time.Time
}

func New(db *badger.DB) *Store {
	return &Store{
		db:    db,
		locks: syncx.NewKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

// GetOrCreateChat идемпотентен. Две транзакции, одновременно не нашедшие пару,
// конфликтуют на ключе pair:...; проигравшая получает ErrConflict и перечитывает.
func (s *Store) GetOrCreateChat(ctx context.Context, clinicID, doctorID string) (domain.Chat, error) {
	if clinicID == "" || doctorID == "" {
		return domain.Chat{}, domain.Invalidf("clinic id and doctor id are required")
	}
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}

	var chat domain.Chat
	err := s.db.Update(func(txn *badger.Txn) error {
		found, err := chatByPair(txn, clinicID, doctorID)
		if err == nil {
			chat = found
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := s.now()
		chat = domain.Chat{
			ID:            uuid.NewString(),
			ClinicID:      clinicID,
			DoctorID:      doctorID,
			LastMessageAt: now,
			CreatedAt:     now,
		}
		if err := putJSON(txn, chatKey(chat.ID), chat); err != nil {
			return err
		}
		if err := txn.Set(pairKey(clinicID, doctorID), []byte(chat.ID)); err != nil {
			return err
		}
		if err := txn.Set(participantKey(domain.ClinicSender(clinicID), chat.ID), nil); err != nil {
			return err
		}
		return txn.Set(participantKey(domain.DoctorSender(doctorID), chat.ID), nil)
	})
	if errors.Is(err, badger.ErrConflict) {
		err = s.db.View(func(txn *badger.Txn) error {
			found, err := chatByPair(txn, clinicID, doctorID)
			chat = found
			return err
		})
	}
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	var chat domain.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, chatID)
		return err
	})
	return chat, err
}

func (s *Store) ListChats(ctx context.Context, participant domain.Sender) ([]domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chats := make([]domain.Chat, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := participantPrefix(participant)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var chatIDs []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatIDs = append(chatIDs, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
		}

		for _, id := range chatIDs {
			chat, err := getChat(txn, id)
			if err != nil {
				return fmt.Errorf("chat index %s: %w", id, err)
			}
			chats = append(chats, chat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(chats, func(a, b domain.Chat) int {
		if c := b.LastMessageAt.Compare(a.LastMessageAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return chats, nil
}

// AppendMessage пишет сообщение и обновляет чат в одной транзакции.
// Append'ы одного чата сериализуются локом, поэтому seq идут без дыр и конфликтов.
func (s *Store) AppendMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	if err := in.Check(); err != nil {
		return domain.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	unlock := s.locks.Lock(in.ChatID)
	defer unlock()

	var msg domain.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		chat, err := getChat(txn, in.ChatID)
		if err != nil {
			return err
		}
		if !chat.Participant(in.Sender) {
			return domain.ErrNotParticipant
		}

		msg = domain.Message{
			ID:         uuid.NewString(),
			ChatID:     chat.ID,
			Seq:        chat.LastSeq + 1,
			Sender:     in.Sender,
			Content:    in.Content,
			Attachment: in.Attachment,
			CreatedAt:  chat.NextTimestamp(s.now()),
		}
		key := messageKey(chat.ID, msg.Seq)
		if err := putJSON(txn, key, msg); err != nil {
			return err
		}
		if err := txn.Set(messageIDKey(msg.ID), key); err != nil {
			return err
		}

		chat.LastSeq = msg.Seq
		chat.LastMessageAt = msg.CreatedAt
		return putJSON(txn, chatKey(chat.ID), chat)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string, page domain.Page) ([]domain.Message, string, error) {
	page, cur, err := page.Normalize(domain.DefaultPageLimit, domain.MaxPageLimit)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	out := make([]domain.Message, 0, page.Limit+1)
	err = s.db.View(func(txn *badger.Txn) error {
		if _, err := getChat(txn, chatID); err != nil {
			return err
		}

		prefix := messagePrefix(chatID)
		opts := badger.DefaultIteratorOptions

		var seek []byte
		switch {
		case page.Order == domain.OrderDesc && cur == nil:
			opts.Reverse = true
			seek = append(slices.Clone(prefix), maxSeqSuffix...)
		case page.Order == domain.OrderDesc:
			if cur.Seq <= 1 {
				return nil
			}
			opts.Reverse = true
			seek = messageKey(chatID, cur.Seq-1)
		case cur == nil:
			seek = prefix
		default:
			seek = messageKey(chatID, cur.Seq+1)
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		// limit+1: лишний элемент говорит, что есть следующая страница
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) <= page.Limit; it.Next() {
			var m domain.Message
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(out) > page.Limit {
		out = out[:page.Limit]
		next = domain.EncodeCursor(domain.Cursor{Seq: out[len(out)-1].Seq})
	}
	return out, next, nil
}

// MarkRead идемпотентен; одновременные вызовы по одному сообщению сходятся к read=true.
func (s *Store) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	if messageID == "" {
		return domain.Message{}, domain.Invalidf("message id is required")
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	var msg domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		_, m, err := getMessage(txn, messageID)
		msg = m
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *Store) MarkRead(ctx context.Context, messageID string) (domain.Message, error) {
	if messageID == "" {
		return domain.Message{}, domain.Invalidf("message id is required")
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	var msg domain.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		key, m, err := getMessage(txn, messageID)
		if err != nil {
			return err
		}
		msg = m
		if msg.Read {
			return nil
		}
		msg.Read = true
		return putJSON(txn, key, msg)
	})
	if errors.Is(err, badger.ErrConflict) {
		// кто-то успел отметить раньше; перечитываем
		err = s.db.View(func(txn *badger.Txn) error {
			_, m, err := getMessage(txn, messageID)
			msg = m
			return err
		})
	}
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// -------- helpers --------

func getChat(txn *badger.Txn, chatID string) (domain.Chat, error) {
	var chat domain.Chat
	if err := getJSON(txn, chatKey(chatID), &chat); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Chat{}, domain.ErrChatNotFound
		}
		return domain.Chat{}, err
	}
	return chat, nil
}

func chatByPair(txn *badger.Txn, clinicID, doctorID string) (domain.Chat, error) {
	item, err := txn.Get(pairKey(clinicID, doctorID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Chat{}, domain.ErrChatNotFound
	}
	if err != nil {
		return domain.Chat{}, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Chat{}, err
	}
	return getChat(txn, string(id))
}

func getMessage(txn *badger.Txn, messageID string) ([]byte, domain.Message, error) {
	item, err := txn.Get(messageIDKey(messageID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.Message{}, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, domain.Message{}, err
	}

	var m domain.Message
	if err := getJSON(txn, key, &m); err != nil {
		return nil, domain.Message{}, fmt.Errorf("message %s: %w", messageID, err)
	}
	return key, m, nil
}

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, dst)
	})
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
