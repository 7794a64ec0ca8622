package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Subjective/watch-together-sub000/internal/protocol"
)

func TestMonitorStartStop(t *testing.T) {
	var mu sync.Mutex
	sweeps := 0
	m := NewMonitor(10*time.Millisecond, func() {
		mu.Lock()
		sweeps++
		mu.Unlock()
	})
	defer m.Stop()

	m.Start()
	m.Start() // idempotent
	assert.True(t, m.Running())

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	count := sweeps
	mu.Unlock()
	assert.GreaterOrEqual(t, count, 2, "expected repeated sweeps")

	m.Stop()
	m.Stop() // idempotent
	assert.False(t, m.Running())
}

func TestIdleEviction(t *testing.T) {
	t.Run("idle connection is evicted through the removal routine", func(t *testing.T) {
		c, clock, _, _ := newTestCoordinator(t)
		host := &fakeConn{}
		second := &fakeConn{}
		c.HandleMessage(host, createMsg("u1", "Alice"))
		c.HandleMessage(second, joinMsg("u2", "Bob"))

		// u2 keeps itself alive past u1's idle deadline.
		clock.Advance(DefaultIdleTimeout + time.Minute)
		c.HandleMessage(second, protocol.Message{Type: protocol.TypeKeepAlive, RoomID: testRoomID, UserID: "u2"})

		c.sweepIdle()

		assert.True(t, host.closed, "idle host socket is closed")
		state, err := c.Snapshot()
		require.NoError(t, err)
		require.Len(t, state.Users, 1)
		assert.Equal(t, "u2", state.Users[0].ID)
		assert.Equal(t, "u2", state.HostID, "eviction triggers the same failover as a leave")

		drops := second.eventsOfType(protocol.EventUserDisconnected)
		require.Len(t, drops, 1)
		assert.Equal(t, "u1", drops[0].LeftUserID)
		assert.Equal(t, "u2", drops[0].NewHostID)
		assertSingleHost(t, c)
	})

	t.Run("sweep stops the monitor once the registry empties", func(t *testing.T) {
		c, clock, alarm, _ := newTestCoordinator(t)
		host := &fakeConn{}
		c.HandleMessage(host, createMsg("u1", "Alice"))
		require.True(t, c.monitor.Running())

		clock.Advance(DefaultIdleTimeout + time.Minute)
		c.sweepIdle()

		assert.False(t, c.monitor.Running())
		_, armed := alarm.Pending()
		assert.True(t, armed, "empty room heads into the deletion grace period")
	})

	t.Run("active connections survive the sweep", func(t *testing.T) {
		c, clock, _, _ := newTestCoordinator(t)
		host := &fakeConn{}
		c.HandleMessage(host, createMsg("u1", "Alice"))

		clock.Advance(time.Minute)
		c.sweepIdle()

		assert.False(t, host.closed)
		state, err := c.Snapshot()
		require.NoError(t, err)
		assert.Len(t, state.Users, 1)
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	reg.Add("u1", &fakeConn{}, true, now)
	reg.Add("u2", &fakeConn{}, false, now.Add(time.Minute))

	assert.Equal(t, 2, reg.Len())
	assert.True(t, reg.Has("u1"))

	idle := reg.IdleBefore(now.Add(30 * time.Second))
	require.Len(t, idle, 1)
	assert.Equal(t, "u1", idle[0])

	require.True(t, reg.Touch("u1", now.Add(2*time.Minute)))
	assert.Empty(t, reg.IdleBefore(now.Add(30*time.Second)))

	assert.True(t, reg.Remove("u1"))
	assert.False(t, reg.Remove("u1"), "second removal reports nothing to do")
	assert.False(t, reg.Touch("u1", now))
	assert.Equal(t, 1, reg.Len())
}
