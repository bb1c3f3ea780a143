// Package identity определяет, кто стоит за соединением или запросом.
package identity

import (
	"context"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
)

// Identity: аутентифицированный участник. Нулевое значение означает «доверенный режим»:
// личность не проверялась и любые senderId/senderType из payload принимаются.
type Identity struct {
	Type domain.ParticipantType
	ID   string
}

func (i Identity) IsZero() bool { return i.Type == "" && i.ID == "" }

// Allows: может ли эта личность отправлять от имени sender.
func (i Identity) Allows(s domain.Sender) bool {
	if i.IsZero() {
		return true
	}
	return i.Type == s.Type() && i.ID == s.ID()
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Trusted принимает всё: личность уже проверена на периметре.
type Trusted struct{}

func (Trusted) Verify(context.Context, string) (Identity, error) { return Identity{}, nil }

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext возвращает личность из контекста; без неё: нулевую (доверенный режим).
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

// CheckChat возвращает Forbidden, если личность из ctx не является стороной чата.
func CheckChat(ctx context.Context, chat domain.Chat) error {
	id := FromContext(ctx)
	if id.Allows(domain.ClinicSender(chat.ClinicID)) || id.Allows(domain.DoctorSender(chat.DoctorID)) {
		return nil
	}
	return domain.Forbiddenf("authenticated participant is not a side of this chat")
}

// CheckSender возвращает Forbidden, если личность из ctx не может писать от имени sender.
func CheckSender(ctx context.Context, s domain.Sender) error {
	if !FromContext(ctx).Allows(s) {
		return domain.Forbiddenf("authenticated participant cannot send as %s", s)
	}
	return nil
}
