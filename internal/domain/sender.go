package domain

import (
	"fmt"
	"strings"
)

// ParticipantType: сторона чата: клиника или врач.
type ParticipantType string

const (
	ParticipantClinic ParticipantType = "clinic"
	ParticipantDoctor ParticipantType = "doctor"
)

func ParseParticipantType(s string) (ParticipantType, error) {
	switch ParticipantType(s) {
	case ParticipantClinic, ParticipantDoctor:
		return ParticipantType(s), nil
	default:
		return "", Invalidf("invalid sender type %q: expected clinic or doctor", s)
	}
}

// Sender: ровно одна из сторон: Clinic(id) | Doctor(id).
// Нулевое значение невалидно, создавать только через конструкторы.
type Sender struct {
	kind ParticipantType
	id   string
}

func ClinicSender(id string) Sender { return Sender{kind: ParticipantClinic, id: id} }
func DoctorSender(id string) Sender { return Sender{kind: ParticipantDoctor, id: id} }

// NewSender проверяет тип и id. Пустой id или неизвестный тип → InvalidArgument.
func NewSender(senderType, id string) (Sender, error) {
	kind, err := ParseParticipantType(senderType)
	if err != nil {
		return Sender{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Sender{}, Invalidf("sender id is required")
	}
	return Sender{kind: kind, id: id}, nil
}

func (s Sender) Type() ParticipantType { return s.kind }
func (s Sender) ID() string            { return s.id }
func (s Sender) IsZero() bool          { return s.kind == "" }
func (s Sender) IsClinic() bool        { return s.kind == ParticipantClinic }
func (s Sender) IsDoctor() bool        { return s.kind == ParticipantDoctor }

func (s Sender) String() string { return fmt.Sprintf("%s:%s", s.kind, s.id) }

// ClinicID / DoctorID возвращают nil для «другой» стороны; так сообщение
// сериализуется в пару senderClinicId/senderDoctorId.
func (s Sender) ClinicID() *string {
	if !s.IsClinic() {
		return nil
	}
	id := s.id
	return &id
}

func (s Sender) DoctorID() *string {
	if !s.IsDoctor() {
		return nil
	}
	id := s.id
	return &id
}

// SenderFromColumns собирает Sender из пары nullable-колонок хранилища.
func SenderFromColumns(clinicID, doctorID *string) (Sender, error) {
	switch {
	case clinicID != nil && doctorID == nil:
		return ClinicSender(*clinicID), nil
	case doctorID != nil && clinicID == nil:
		return DoctorSender(*doctorID), nil
	default:
		return Sender{}, fmt.Errorf("corrupt sender: exactly one of clinic/doctor id must be set")
	}
}
