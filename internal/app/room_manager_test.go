package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Subjective/watch-together-sub000/internal/core"
	"github.com/Subjective/watch-together-sub000/internal/protocol"
	"github.com/Subjective/watch-together-sub000/internal/storage"
)

type nopConn struct{}

func (nopConn) Send(any) error            { return nil }
func (nopConn) CloseWithCode(int, string) {}

func TestGetOrCreateShardsPerRoom(t *testing.T) {
	m := NewRoomManager(storage.NewMemoryProvider(), core.Config{})

	a := m.GetOrCreate("abc123")
	b := m.GetOrCreate("abc123")
	other := m.GetOrCreate("xyz789")

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Len(t, m.List(), 2)
}

func TestReleaseDropsQueriedMiss(t *testing.T) {
	m := NewRoomManager(storage.NewMemoryProvider(), core.Config{})

	coord := m.GetOrCreate("ghost")
	_, err := coord.Snapshot()
	require.ErrorIs(t, err, core.ErrRoomNotFound)

	m.Release("ghost")
	assert.Empty(t, m.List(), "a coordinator for a room that never existed is dropped")
}

func TestReleaseKeepsConnectedRooms(t *testing.T) {
	m := NewRoomManager(storage.NewMemoryProvider(), core.Config{})

	coord := m.GetOrCreate("abc123")
	coord.HandleMessage(nopConn{}, protocol.Message{
		Type: protocol.TypeCreateRoom, RoomID: "abc123", UserID: "u1", UserName: "Alice",
	})

	m.Release("abc123")
	require.Len(t, m.List(), 1, "a room with live connections survives a release attempt")
}

func TestCoordinatorDroppedAfterRecordDeletion(t *testing.T) {
	m := NewRoomManager(storage.NewMemoryProvider(), core.Config{EmptyGrace: 20 * time.Millisecond})

	coord := m.GetOrCreate("abc123")
	coord.HandleMessage(nopConn{}, protocol.Message{
		Type: protocol.TypeCreateRoom, RoomID: "abc123", UserID: "u1", UserName: "Alice",
	})
	coord.HandleMessage(nopConn{}, protocol.Message{
		Type: protocol.TypeLeaveRoom, RoomID: "abc123", UserID: "u1",
	})

	// The empty-room alarm deletes the record and the manager lets go of the
	// coordinator.
	assert.Eventually(t, func() bool {
		return len(m.List()) == 0
	}, time.Second, 10*time.Millisecond)
}
