package runtime

import (
	"fmt"
	"log/slog"
	"support-chat/domain"
	"support-chat/errors"
	"sync"
	"time"
)

// RoomManager owns group rooms and their membership.
type RoomManager struct {
	mu    sync.RWMutex
	log   *slog.Logger
	rooms map[domain.ConversationID]*domain.Room
	now   func() time.Time
}

func NewRoomManager(log *slog.Logger) *RoomManager {
	return &RoomManager{
		log:   log,
		rooms: make(map[domain.ConversationID]*domain.Room),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoom creates an active room with the creator as first member.
func (m *RoomManager) CreateRoom(creatorID domain.UserID) domain.Room {
	room := domain.NewRoom(creatorID, m.now())

	m.mu.Lock()
	m.rooms[room.ID] = room
	m.mu.Unlock()

	m.log.Debug("Room created", "room_id", room.ID, "created_by", creatorID)
	return room.Snapshot()
}

// Join is idempotent: joining twice leaves a single membership.
func (m *RoomManager) Join(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.getLocked(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Join(userID) {
		m.log.Debug("Room joined", "room_id", roomID, "user_id", userID)
	}
	return room.Snapshot(), nil
}

// Leave is idempotent. The room becomes inactive once its last member leaves.
func (m *RoomManager) Leave(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.getLocked(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Leave(userID) {
		m.log.Debug("Room left", "room_id", roomID, "user_id", userID, "active", room.Active)
	}
	return room.Snapshot(), nil
}

func (m *RoomManager) Members(roomID domain.ConversationID) ([]domain.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, err := m.getLocked(roomID)
	if err != nil {
		return nil, err
	}
	return room.Members(), nil
}

func (m *RoomManager) Get(roomID domain.ConversationID) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, err := m.getLocked(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	return room.Snapshot(), nil
}

func (m *RoomManager) getLocked(roomID domain.ConversationID) (*domain.Room, error) {
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	return room, nil
}
