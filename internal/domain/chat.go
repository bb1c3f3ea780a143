package domain

import "time"

// Chat: диалог одной клиники с одним врачом. Пара (ClinicID, DoctorID) уникальна.
type Chat struct {
	ID            string    `json:"id"`
	ClinicID      string    `json:"clinicId"`
	DoctorID      string    `json:"doctorId"`
	LastSeq       int64     `json:"lastSeq"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Participant сообщает, является ли отправитель стороной этого чата.
func (c Chat) Participant(s Sender) bool {
	switch s.Type() {
	case ParticipantClinic:
		return s.ID() == c.ClinicID
	case ParticipantDoctor:
		return s.ID() == c.DoctorID
	default:
		return false
	}
}

// NextTimestamp не даёт времени нового сообщения уйти раньше предыдущего.
func (c Chat) NextTimestamp(now time.Time) time.Time {
	if c.LastSeq > 0 && now.Before(c.LastMessageAt) {
		return c.LastMessageAt
	}
	return now
}
