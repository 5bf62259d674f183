package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// NicknameStore remembers the nickname used per room between sessions.
// Purely local convenience, outside the relay protocol.
type NicknameStore struct {
	mu    sync.Mutex
	path  string
	nicks map[string]string
}

// OpenNicknameStore loads (or initializes) the store at path.
func OpenNicknameStore(path string) (*NicknameStore, error) {
	s := &NicknameStore{path: path, nicks: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s.nicks); err != nil {
		// A corrupt file is not worth failing over; start fresh.
		s.nicks = make(map[string]string)
	}
	return s, nil
}

// Nickname returns the remembered nickname for a room, if any.
func (s *NicknameStore) Nickname(roomID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nick, ok := s.nicks[roomID]
	return nick, ok
}

// Remember persists a nickname for a room.
func (s *NicknameStore) Remember(roomID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nicks[roomID] = nickname

	data, err := json.MarshalIndent(s.nicks, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
