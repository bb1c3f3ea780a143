package domain

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Page: запрос страницы истории. Cursor непрозрачен для клиента.
type Page struct {
	Cursor string
	Limit  int
	Order  Order
}

// Cursor указывает на последнее отданное сообщение по seq.
type Cursor struct {
	Seq int64 `json:"seq"`
}

// Normalize подставляет дефолты, режет limit и декодирует курсор.
func (p Page) Normalize(defLimit, maxLimit int) (Page, *Cursor, error) {
	if defLimit <= 0 {
		defLimit = DefaultPageLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxPageLimit
	}
	if p.Limit <= 0 {
		p.Limit = defLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	switch Order(strings.ToLower(string(p.Order))) {
	case "", OrderAsc:
		p.Order = OrderAsc
	case OrderDesc:
		p.Order = OrderDesc
	default:
		return Page{}, nil, Invalidf("invalid order %q: expected asc or desc", p.Order)
	}

	cur, err := DecodeCursor(p.Cursor)
	if err != nil {
		return Page{}, nil, err
	}
	return p, cur, nil
}

func EncodeCursor(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil || c.Seq <= 0 {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// MessagePage: ответ ListMessages.
type MessagePage struct {
	Items      []MessageView `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}
