package ws

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// session: одно WS-соединение. Писать в сокет может только writeLoop,
// остальные кладут кадры в outbox через Enqueue.
type session struct {
	id     string
	conn   *websocket.Conn
	log    *slog.Logger
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

func newSession(id string, conn *websocket.Conn, sendBuffer int, log *slog.Logger) *session {
	return &session{
		id:     id,
		conn:   conn,
		log:    log,
		outbox: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (s *session) ID() string { return s.id }

// Enqueue не блокирует: переполненная очередь означает медленного клиента, и его отключают.
func (s *session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.outbox <- frame:
		return true
	case <-s.done:
		return false
	default:
		s.log.Warn("ws slow consumer, closing connection", slog.Int("buffer", cap(s.outbox)))
		_ = s.Close()
		return false
	}
}

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
