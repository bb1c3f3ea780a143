package ws

import "encoding/json"

// Типы событий WS
const (
	TypeJoin    = "join"            // вход в комнату чата
	TypeLeave   = "leave"           // выход из комнаты
	TypeSend    = "send"            // отправка сообщения
	TypeReceive = "receive_message" // сохранённое сообщение, рассылается всей комнате
	TypeError   = "error"           // ошибка, только отправителю
)

// Envelope: кадр WS в обе стороны: {"type": "...", "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	ChatID string `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

func decode(raw json.RawMessage, dst any) error {
	return json.Unmarshal(raw, dst)
}
