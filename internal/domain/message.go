package domain

import (
	"encoding/json"
	"time"
)

// Attachment: метаданные уже загруженного файла. Сам файл сервис не хранит.
type Attachment struct {
	URL         string `json:"url"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type Message struct {
	ID         string
	ChatID     string
	Seq        int64
	Sender     Sender
	Content    string
	Attachment *Attachment
	Read       bool
	CreatedAt  time.Time
}

// SenderProfile: отображаемые атрибуты отправителя, денормализуются в ответ.
type SenderProfile struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

// MessageView: сообщение в том виде, в каком его видят клиенты:
// и в receive_message, и в истории.
type MessageView struct {
	Message
	Profile SenderProfile
}

type messageJSON struct {
	ID             string          `json:"id"`
	ChatID         string          `json:"chatId"`
	Seq            int64           `json:"seq"`
	Content        string          `json:"content"`
	SenderType     ParticipantType `json:"senderType"`
	SenderClinicID *string         `json:"senderClinicId"`
	SenderDoctorID *string         `json:"senderDoctorId"`
	Attachment     *Attachment     `json:"attachment,omitempty"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type messageViewJSON struct {
	messageJSON
	SenderName           string `json:"senderName"`
	SenderSpecialization string `json:"senderSpecialization,omitempty"`
}

func (m Message) wire() messageJSON {
	return messageJSON{
		ID:             m.ID,
		ChatID:         m.ChatID,
		Seq:            m.Seq,
		Content:        m.Content,
		SenderType:     m.Sender.Type(),
		SenderClinicID: m.Sender.ClinicID(),
		SenderDoctorID: m.Sender.DoctorID(),
		Attachment:     m.Attachment,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func (w messageJSON) message() (Message, error) {
	sender, err := SenderFromColumns(w.SenderClinicID, w.SenderDoctorID)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         w.ID,
		ChatID:     w.ChatID,
		Seq:        w.Seq,
		Sender:     sender,
		Content:    w.Content,
		Attachment: w.Attachment,
		Read:       w.Read,
		CreatedAt:  w.CreatedAt,
	}, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.wire())
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	msg, err := w.message()
	if err != nil {
		return err
	}
	*m = msg
	return nil
}

func (v MessageView) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageViewJSON{
		messageJSON:          v.Message.wire(),
		SenderName:           v.Profile.Name,
		SenderSpecialization: v.Profile.Specialization,
	})
}

func (v *MessageView) UnmarshalJSON(data []byte) error {
	var w messageViewJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	msg, err := w.messageJSON.message()
	if err != nil {
		return err
	}
	v.Message = msg
	v.Profile = SenderProfile{Name: w.SenderName, Specialization: w.SenderSpecialization}
	return nil
}

// NewMessage: то, что пишется в хранилище. ID, Seq и CreatedAt назначает хранилище.
type NewMessage struct {
	ChatID     string
	Sender     Sender
	Content    string
	Attachment *Attachment
}

// Check: минимальные инварианты, которые хранилище проверяет само.
func (n NewMessage) Check() error {
	if n.ChatID == "" {
		return Invalidf("chat id is required")
	}
	if n.Sender.IsZero() || n.Sender.ID() == "" {
		return Invalidf("sender is required")
	}
	if n.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
