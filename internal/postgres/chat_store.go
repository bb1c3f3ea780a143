package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

/*
абстрактный слой над *pgxpool.Pool / pgx.Tx,
чтобы одни и те же запросы шли и в транзакции, и без неё
*/
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ChatStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{
		pool: pool,
		// postgres хранит микросекунды; обрезаем заранее, чтобы broadcast и история совпадали
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *ChatStore) Ping(ctx context.Context) error {
	return Ping(ctx, s.pool)
}

// GetOrCreateChat идемпотентен: параллельные вызовы с одной парой получают один чат.
// Проигравший гонку INSERT ловит 23505 и перечитывает строку победителя.
func (s *ChatStore) GetOrCreateChat(ctx context.Context, clinicID, doctorID string) (domain.Chat, error) {
	if clinicID == "" || doctorID == "" {
		return domain.Chat{}, domain.Invalidf("clinic id and doctor id are required")
	}

	chat, err := scanChat(s.pool.QueryRow(ctx, qChatByParticipants, clinicID, doctorID))
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Chat{}, err
	}

	chat, err = scanChat(s.pool.QueryRow(ctx, qInsertChat, uuid.NewString(), clinicID, doctorID, s.now()))
	if errors.Is(err, domain.ErrConflict) {
		return scanChat(s.pool.QueryRow(ctx, qChatByParticipants, clinicID, doctorID))
	}
	return chat, err
}

func (s *ChatStore) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx, qChatByID, chatID))
}

func (s *ChatStore) ListChats(ctx context.Context, participant domain.Sender) ([]domain.Chat, error) {
	q := qChatsByClinic
	if participant.IsDoctor() {
		q = qChatsByDoctor
	}

	rows, err := s.pool.Query(ctx, q, participant.ID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Chat, 0, 16)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chat)
	}
	return out, rows.Err()
}

// AppendMessage пишет сообщение и двигает last_seq/last_message_at чата в одной транзакции.
// Строка чата берётся FOR UPDATE: параллельные append'ы одного чата выстраиваются в очередь.
func (s *ChatStore) AppendMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	if err := in.Check(); err != nil {
		return domain.Message{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback(ctx)

	chat, err := scanChat(tx.QueryRow(ctx, qChatByIDForUpdate, in.ChatID))
	if err != nil {
		return domain.Message{}, err
	}
	if !chat.Participant(in.Sender) {
		return domain.Message{}, domain.ErrNotParticipant
	}

	seq := chat.LastSeq + 1
	createdAt := chat.NextTimestamp(s.now())

	var attURL, attName, attType *string
	if a := in.Attachment; a != nil {
		attURL, attName, attType = &a.URL, &a.FileName, &a.ContentType
	}

	msg, err := scanMessage(tx.QueryRow(ctx, qInsertMessage,
		uuid.NewString(), in.ChatID, seq, in.Content,
		in.Sender.ClinicID(), in.Sender.DoctorID(),
		attURL, attName, attType, createdAt,
	))
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, qBumpChat, in.ChatID, seq, createdAt); err != nil {
		return domain.Message{}, fmt.Errorf("bump chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListMessages возвращает страницу истории по seq и курсор следующей страницы.
func (s *ChatStore) ListMessages(ctx context.Context, chatID string, page domain.Page) ([]domain.Message, string, error) {
	page, cur, err := page.Normalize(domain.DefaultPageLimit, domain.MaxPageLimit)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, "", err
	}

	var after int64
	if cur != nil {
		after = cur.Seq
	}
	q := qMessagesAsc
	if page.Order == domain.OrderDesc {
		q = qMessagesDesc
	}

	// limit+1: лишняя строка говорит, что есть следующая страница
	rows, err := s.pool.Query(ctx, q, chatID, after, page.Limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, page.Limit+1)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) > page.Limit {
		out = out[:page.Limit]
		next = domain.EncodeCursor(domain.Cursor{Seq: out[len(out)-1].Seq})
	}
	return out, next, nil
}

// MarkRead идемпотентен: повторный вызов ничего не меняет и возвращает то же сообщение.
func (s *ChatStore) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	if messageID == "" {
		return domain.Message{}, domain.Invalidf("message id is required")
	}
	return scanMessage(s.pool.QueryRow(ctx, qMessageByID, messageID))
}

func (s *ChatStore) MarkRead(ctx context.Context, messageID string) (domain.Message, error) {
	if messageID == "" {
		return domain.Message{}, domain.Invalidf("message id is required")
	}
	return scanMessage(s.pool.QueryRow(ctx, qMarkRead, messageID))
}

// -------- helpers --------

func scanChat(row pgx.Row) (domain.Chat, error) {
	var c domain.Chat
	err := row.Scan(&c.ID, &c.ClinicID, &c.DoctorID, &c.LastSeq, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return domain.Chat{}, mapPgError(err, domain.ErrChatNotFound)
	}
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m                        domain.Message
		clinicID, doctorID       *string
		attURL, attName, attType *string
	)
	err := row.Scan(
		&m.ID, &m.ChatID, &m.Seq, &m.Content,
		&clinicID, &doctorID,
		&attURL, &attName, &attType,
		&m.Read, &m.CreatedAt,
	)
	if err != nil {
		return domain.Message{}, mapPgError(err, domain.ErrMessageNotFound)
	}

	m.Sender, err = domain.SenderFromColumns(clinicID, doctorID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	if attURL != nil {
		m.Attachment = &domain.Attachment{URL: *attURL}
		if attName != nil {
			m.Attachment.FileName = *attName
		}
		if attType != nil {
			m.Attachment.ContentType = *attType
		}
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
