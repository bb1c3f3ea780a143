package ws

import (
	"sync"

	"github.com/samber/lo"
)

// Conn: то, что реестру и роутеру нужно от живого соединения.
type Conn interface {
	ID() string
	// Enqueue кладёт готовый кадр в очередь отправки и никогда не блокирует.
	Enqueue(frame []byte) bool
	Close() error
}

type membership struct {
	conn  Conn
	rooms map[string]struct{}
}

// Registry: какие соединения в каких комнатах. Только память процесса:
// после рестарта клиенты переподключаются и заново делают join.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn // chatID -> connID -> conn
	conns map[string]*membership     // connID -> комнаты соединения
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]Conn),
		conns: make(map[string]*membership),
	}
}

func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; ok {
		return
	}
	r.conns[c.ID()] = &membership{conn: c, rooms: make(map[string]struct{})}
}

// Join добавляет соединение в комнату. Для неизвестного (уже сброшенного) соединения: no-op.
func (r *Registry) Join(connID, chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[connID]
	if !ok {
		return false
	}
	m.rooms[chatID] = struct{}{}

	room, ok := r.rooms[chatID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[chatID] = room
	}
	room[connID] = m.conn
	return true
}

func (r *Registry) Leave(connID, chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, in := m.rooms[chatID]; !in {
		return false
	}
	delete(m.rooms, chatID)
	r.removeFromRoom(chatID, connID)
	return true
}

// DropConnection убирает соединение из всех комнат и возвращает, где оно было.
func (r *Registry) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)

	rooms := lo.Keys(m.rooms)
	for _, chatID := range rooms {
		r.removeFromRoom(chatID, connID)
	}
	return rooms
}

// Members: снимок комнаты; рассылка идёт уже без лока.
func (r *Registry) Members(chatID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.rooms[chatID])
}

func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.conns[connID]
	if !ok {
		return nil
	}
	return lo.Keys(m.rooms)
}

func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.conns, func(_ string, m *membership) Conn { return m.conn })
}

func (r *Registry) removeFromRoom(chatID, connID string) {
	room, ok := r.rooms[chatID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, chatID)
	}
}
