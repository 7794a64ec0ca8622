package core

import (
	"sync"
	"testing"
	"time"

	"github.com/Subjective/watch-together-sub000/internal/protocol"
	"github.com/Subjective/watch-together-sub000/internal/storage"
)

// fakeConn records everything the coordinator sends or does to a connection.
type fakeConn struct {
	mu          sync.Mutex
	events      []protocol.Event
	relayed     []protocol.Message
	closed      bool
	closeCode   int
	closeReason string
}

func (f *fakeConn) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m := v.(type) {
	case protocol.Event:
		f.events = append(f.events, m)
	case protocol.Message:
		f.relayed = append(f.relayed, m)
	}
	return nil
}

func (f *fakeConn) CloseWithCode(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
}

func (f *fakeConn) lastEvent() (protocol.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return protocol.Event{}, false
	}
	return f.events[len(f.events)-1], true
}

func (f *fakeConn) eventsOfType(t protocol.EventType) []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeConn) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeAlarm records arming without any timer behind it; tests fire the
// coordinator's alarm handler directly.
type fakeAlarm struct {
	mu    sync.Mutex
	at    time.Time
	armed bool
}

func (a *fakeAlarm) Arm(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.at = at
	a.armed = true
}

func (a *fakeAlarm) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = false
}

func (a *fakeAlarm) Pending() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.at, a.armed
}

// fakeClock is the injectable time source for deterministic host-assignment
// outcomes.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const testRoomID = "abc123"

// newTestCoordinator builds a coordinator over an in-memory store with a fake
// clock and alarm.
func newTestCoordinator(t *testing.T) (*Coordinator, *fakeClock, *fakeAlarm, *storage.MemoryStore) {
	t.Helper()
	st := storage.NewMemoryStore()
	c := New(testRoomID, st, Config{})
	clock := newFakeClock()
	alarm := &fakeAlarm{}
	c.now = clock.Now
	c.alarm = alarm
	t.Cleanup(c.monitor.Stop)
	return c, clock, alarm, st
}

// restartCoordinator simulates the process dying and coming back: a fresh
// coordinator over the same store, with an empty registry.
func restartCoordinator(t *testing.T, old *Coordinator, st *storage.MemoryStore, clock *fakeClock, alarm *fakeAlarm) *Coordinator {
	t.Helper()
	old.monitor.Stop()
	c := New(testRoomID, st, Config{})
	c.now = clock.Now
	c.alarm = alarm
	t.Cleanup(c.monitor.Stop)
	return c
}

func createMsg(userID, userName string) protocol.Message {
	return protocol.Message{Type: protocol.TypeCreateRoom, RoomID: testRoomID, UserID: userID, UserName: userName, RoomName: "Movie Night"}
}

func joinMsg(userID, userName string) protocol.Message {
	return protocol.Message{Type: protocol.TypeJoinRoom, RoomID: testRoomID, UserID: userID, UserName: userName}
}

func leaveMsg(userID string) protocol.Message {
	return protocol.Message{Type: protocol.TypeLeaveRoom, RoomID: testRoomID, UserID: userID}
}

// assertSingleHost checks the record invariant: at most one user flagged host
// and, when one is, its id matches HostID.
func assertSingleHost(t *testing.T, c *Coordinator) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return
	}
	hosts := 0
	for _, u := range c.record.Users {
		if u.IsHost {
			hosts++
			if u.ID != c.record.HostID {
				t.Fatalf("host flag on %s but hostId is %s", u.ID, c.record.HostID)
			}
		}
	}
	if hosts > 1 {
		t.Fatalf("%d users flagged host", hosts)
	}
}
