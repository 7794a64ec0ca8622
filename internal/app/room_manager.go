// Package app wires room coordinators to their room-scoped stores.
package app

import (
	"sync"

	"github.com/Subjective/watch-together-sub000/internal/core"
	"github.com/Subjective/watch-together-sub000/internal/storage"
)

// RoomManager shards coordinators per room id. Rooms never share state, so
// this map is the only cross-room structure in the process.
type RoomManager struct {
	mu       sync.RWMutex
	cfg      core.Config
	provider storage.Provider
	rooms    map[string]*core.Coordinator
}

func NewRoomManager(provider storage.Provider, cfg core.Config) *RoomManager {
	return &RoomManager{
		cfg:      cfg,
		provider: provider,
		rooms:    make(map[string]*core.Coordinator),
	}
}

// GetOrCreate returns the room's coordinator, instantiating a cold one over
// the room-scoped store on first use.
func (m *RoomManager) GetOrCreate(roomID string) *core.Coordinator {
	m.mu.RLock()
	coord, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if ok {
		return coord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if coord, ok = m.rooms[roomID]; ok {
		return coord
	}
	coord = core.New(roomID, m.provider.ForRoom(roomID), m.cfg)
	coord.NotifyIdle(func() { m.Release(roomID) })
	m.rooms[roomID] = coord
	return coord
}

// Release drops the room's coordinator once it holds no connections, so
// queried-but-never-created ids and deleted rooms don't accumulate. A later
// GetOrCreate builds a cold coordinator over the same store.
func (m *RoomManager) Release(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coord, ok := m.rooms[roomID]
	if !ok || coord.ConnectionCount() != 0 {
		return
	}
	delete(m.rooms, roomID)
}

// RoomInfo is a diagnostic listing entry.
type RoomInfo struct {
	RoomID      string `json:"roomId"`
	Connections int    `json:"connections"`
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, coord := range m.rooms {
		out = append(out, RoomInfo{RoomID: id, Connections: coord.ConnectionCount()})
	}
	return out
}
