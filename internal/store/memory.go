package store

import (
	"sort"
	"sync"

	"github.com/velimir/roomcast/internal/models"
)

type memoryRoom struct {
	// subChannels keeps insertion order; index 0 is always default.
	subChannels []string
	logs        map[string][]models.Message
}

// MemoryStore is the in-process RoomStore. All mutations go through one
// mutex, so each room's log is observed in a single total order.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*memoryRoom)}
}

func (s *MemoryStore) EnsureRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(roomID)
	return nil
}

func (s *MemoryStore) ensureLocked(roomID string) *memoryRoom {
	room, ok := s.rooms[roomID]
	if !ok {
		room = &memoryRoom{
			subChannels: []string{models.DefaultSubChannel},
			logs:        make(map[string][]models.Message),
		}
		s.rooms[roomID] = room
	}
	return room
}

func (s *MemoryStore) AppendDelivered(roomID, subChannel string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.ensureLocked(roomID)
	room.registerSubChannel(subChannel)
	room.logs[subChannel] = append(room.logs[subChannel], *msg)
	return nil
}

func (s *MemoryStore) History(roomID, subChannel string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}

	log := room.logs[subChannel]
	out := make([]models.Message, 0, len(log))
	for _, msg := range log {
		if !msg.IsFinal() {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveTime().Before(out[j].EffectiveTime())
	})
	return out, nil
}

func (s *MemoryStore) ListSubChannels(roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.ensureLocked(roomID)
	out := make([]string, len(room.subChannels))
	copy(out, room.subChannels)
	return out, nil
}

func (s *MemoryStore) CreateSubChannel(roomID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.ensureLocked(roomID)
	return room.registerSubChannel(name), nil
}

func (r *memoryRoom) registerSubChannel(name string) bool {
	for _, existing := range r.subChannels {
		if existing == name {
			return false
		}
	}
	r.subChannels = append(r.subChannels, name)
	return true
}
