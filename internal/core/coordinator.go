package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Subjective/watch-together-sub000/internal/domain"
	"github.com/Subjective/watch-together-sub000/internal/protocol"
	"github.com/Subjective/watch-together-sub000/internal/storage"
)

// roomRecordKey is the single key a room's record lives under in its
// room-scoped store.
const roomRecordKey = "room"

const defaultRoomName = "Watch Party"

const (
	DefaultRecoveryWindow = 5 * time.Minute
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultSweepInterval  = 2 * time.Minute
	DefaultEmptyGrace     = 30 * time.Minute
)

// Config carries the coordinator's timing knobs.
type Config struct {
	// RecoveryWindow bounds how long after a restart only the original host
	// may reclaim host status.
	RecoveryWindow time.Duration
	// IdleTimeout is the inactivity span after which a connection is evicted.
	IdleTimeout time.Duration
	// SweepInterval is how often the activity monitor runs.
	SweepInterval time.Duration
	// EmptyGrace is how long an empty room's record is kept before deletion.
	EmptyGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = DefaultRecoveryWindow
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.EmptyGrace <= 0 {
		c.EmptyGrace = DefaultEmptyGrace
	}
	return c
}

type departReason int

const (
	departLeave departReason = iota
	departDisconnect
	departEvict
)

// Coordinator is the per-room state machine. It owns the room record and the
// connection registry, applies every inbound message under one mutex (the
// single logical thread of control for the room), and persists the record
// before acknowledging any mutation. There is no state shared across rooms.
type Coordinator struct {
	roomID string
	cfg    Config
	store  storage.Store
	alarm  storage.Alarm
	now    func() time.Time

	mu      sync.Mutex
	loaded  bool
	record  *domain.RoomRecord
	reg     *Registry
	router  *Router
	monitor *Monitor
	onIdle  func()
}

func New(roomID string, store storage.Store, cfg Config) *Coordinator {
	c := &Coordinator{
		roomID: roomID,
		cfg:    cfg.withDefaults(),
		store:  store,
		now:    time.Now,
		reg:    NewRegistry(),
	}
	c.router = NewRouter(c.reg)
	c.monitor = NewMonitor(c.cfg.SweepInterval, c.sweepIdle)
	c.alarm = storage.NewTimerAlarm(c.handleAlarm)
	return c
}

func (c *Coordinator) RoomID() string { return c.roomID }

// ConnectionCount reports the number of live connections.
func (c *Coordinator) ConnectionCount() int { return c.reg.Len() }

// HandleMessage is the single entry point for inbound client messages. Every
// handler failure funnels through here and becomes an error reply; a panic in
// a handler is downgraded to a generic error so one malformed message cannot
// take the whole room down.
func (c *Coordinator) HandleMessage(conn Conn, msg protocol.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "core.coordinator").Str("room", c.roomID).
				Str("type", string(msg.Type)).Interface("panic", rec).Msg("handler panicked")
			c.replyError(conn, &Error{Kind: KindInternal, Err: fmt.Errorf("internal error handling %s", msg.Type)})
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		c.replyError(conn, persistenceErr(err))
		return
	}

	// Any inbound message counts as activity for its sender.
	c.reg.Touch(msg.UserID, c.now())

	var err error
	switch msg.Type {
	case protocol.TypeCreateRoom:
		err = c.handleCreate(conn, msg)
	case protocol.TypeJoinRoom:
		err = c.handleJoin(conn, msg)
	case protocol.TypeLeaveRoom:
		err = c.handleLeave(conn, msg)
	case protocol.TypeRenameRoom:
		err = c.handleRenameRoom(conn, msg)
	case protocol.TypeRenameUser:
		err = c.handleRenameUser(conn, msg)
	case protocol.TypeKeepAlive:
		err = c.handleKeepAlive(conn, msg)
	default:
		if msg.Type.IsSignaling() {
			err = c.handleRelay(msg)
		} else {
			err = validationErr(fmt.Errorf("unknown message type %q", msg.Type))
		}
	}
	if err != nil {
		c.replyError(conn, err)
	}
}

// OnDisconnect funnels an unexpected socket close into the shared removal
// routine. Only the socket that owns the user's registry entry may remove the
// user; a close from any other socket claiming the same id is ignored. Safe
// to call repeatedly.
func (c *Coordinator) OnDisconnect(userID string, conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.roomID).Msg("load on disconnect failed")
		return
	}
	if cur, ok := c.reg.Get(userID); !ok || cur != conn {
		return
	}
	c.removeUser(userID, departDisconnect)
}

// ConnectedAs reports whether the user's live connection is this socket.
func (c *Coordinator) ConnectedAs(userID string, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.reg.Get(userID)
	return ok && cur == conn
}

// NotifyIdle registers a callback invoked after the empty-room alarm deletes
// the record, so the owner can drop the coordinator.
func (c *Coordinator) NotifyIdle(fn func()) {
	c.mu.Lock()
	c.onIdle = fn
	c.mu.Unlock()
}

// Snapshot is the synchronous room-info query. It returns the identical
// client-visible state carried by created/joined replies.
func (c *Coordinator) Snapshot() (domain.RoomState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return domain.RoomState{}, err
	}
	if c.record == nil {
		return domain.RoomState{}, ErrRoomNotFound
	}
	return c.record.State(), nil
}

// ensureLoaded runs the cold-start barrier: nothing is processed for the room
// until the durable record (or its absence) is known. The registry always
// starts empty even when the loaded record lists members; the next join reads
// that asymmetry as a restart.
func (c *Coordinator) ensureLoaded() error {
	if c.loaded {
		return nil
	}
	data, err := c.store.Get(roomRecordKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		c.record = nil
	case err != nil:
		return err
	default:
		var rec domain.RoomRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode room record: %w", err)
		}
		c.record = &rec
		c.monitor.Start()
		log.Info().Str("module", "core.coordinator").Str("room", c.roomID).
			Int("users", len(rec.Users)).Msg("room record loaded")
	}
	c.loaded = true
	return nil
}

func (c *Coordinator) persist() error {
	data, err := json.Marshal(c.record)
	if err != nil {
		return err
	}
	return c.store.Put(roomRecordKey, data)
}

func (c *Coordinator) replyError(conn Conn, err error) {
	var cerr *Error
	if !errors.As(err, &cerr) {
		cerr = &Error{Kind: KindInternal, Err: err}
	}
	log.Warn().Err(cerr.Err).Str("module", "core.coordinator").Str("room", c.roomID).
		Str("kind", string(cerr.Kind)).Msg("request failed")
	_ = conn.Send(protocol.Event{
		Type:    protocol.EventError,
		Error:   cerr.Err.Error(),
		Details: string(cerr.Kind),
	})
	if cerr.CloseCode != 0 {
		conn.CloseWithCode(cerr.CloseCode, cerr.Err.Error())
	}
}

// handleCreate builds a fresh room record. Create always wins: any existing
// record, same or different room id, is discarded.
func (c *Coordinator) handleCreate(conn Conn, msg protocol.Message) error {
	now := c.now()
	roomName := defaultRoomName
	if msg.RoomName != "" {
		var err error
		roomName, err = domain.NormalizeRoomName(msg.RoomName)
		if err != nil {
			return validationErr(err)
		}
	}
	host, err := domain.NewUser(msg.UserID, msg.UserName, true, now)
	if err != nil {
		return validationErr(err)
	}

	c.record = domain.NewRoomRecord(c.roomID, roomName, host, now)
	if err := c.persist(); err != nil {
		// Reported to the caller only; the in-memory record stands. A pending
		// deletion alarm stays armed for the record the store still holds.
		return persistenceErr(err)
	}

	c.alarm.Disarm()
	c.reg.Add(host.ID, conn, true, now)
	c.monitor.Start()

	log.Info().Str("module", "core.coordinator").Str("room", c.roomID).
		Str("host", host.ID).Msg("room created")

	state := c.record.State()
	_ = conn.Send(protocol.Event{Type: protocol.EventCreated, RoomState: &state})
	return nil
}

// handleJoin adds a user, reconciling persisted membership with the live
// connection set after a restart.
//
// A stateless restart must not let an unrelated participant steal host status
// merely by reconnecting first, yet must not deadlock the room forever if the
// true host never returns: hence the bounded recovery window with a timeout
// fallback and a late-reclaim path.
func (c *Coordinator) handleJoin(conn Conn, msg protocol.Message) error {
	if c.record == nil {
		return notFoundErr(ErrRoomNotFound, protocol.CloseRoomNotFound)
	}
	rec := c.record
	if msg.RoomID != rec.ID {
		return notFoundErr(ErrRoomMismatch, protocol.CloseRoomIDMismatch)
	}
	if c.reg.Has(msg.UserID) {
		return &Error{Kind: KindValidation, Err: ErrDuplicateJoin, CloseCode: protocol.CloseDuplicateJoin}
	}

	now := c.now()

	// Restart detection: persisted members with zero live connections means
	// the process was recreated and every listed user is stale.
	if len(rec.Users) > 0 && c.reg.Len() == 0 {
		log.Info().Str("module", "core.coordinator").Str("room", c.roomID).
			Int("stale", len(rec.Users)).Str("host", rec.HostID).Msg("restart detected, clearing stale users")
		rec.Users = nil
		if rec.RecoveryStarted == nil {
			started := now
			rec.RecoveryStarted = &started
			rec.OriginalHostID = rec.HostID
		}
	}

	windowOpen := rec.RecoveryStarted != nil
	windowExpired := windowOpen && now.Sub(*rec.RecoveryStarted) >= c.cfg.RecoveryWindow

	isHost := false
	reclaimed := false
	previousHost := ""
	switch {
	case len(rec.Users) == 0:
		switch {
		case windowOpen && !windowExpired:
			// Only the pre-restart host may take the seat; anyone else joins
			// as a participant while HostID keeps pointing at the original
			// host so a later matching arrival can still reclaim it.
			if msg.UserID == rec.OriginalHostID {
				isHost = true
				rec.ClearRecovery()
			}
		case windowExpired:
			isHost = true
			rec.ClearRecovery()
		default:
			isHost = true
		}
	case windowOpen && !windowExpired && msg.UserID == rec.OriginalHostID:
		// The original host came back late: reclaim, demoting whoever holds
		// the seat. While the window is open nobody has been promoted, so
		// the incumbent is usually absent and only the anchor moves.
		for _, u := range rec.Users {
			if u.IsHost {
				previousHost = u.ID
			}
		}
		isHost = true
		reclaimed = true
		rec.ClearRecovery()
	}

	user, err := domain.NewUser(msg.UserID, msg.UserName, isHost, now)
	if err != nil {
		return validationErr(err)
	}
	rec.Users = append(rec.Users, user)
	if isHost {
		rec.SetHost(user.ID)
	}
	rec.LastActivity = now

	if err := c.persist(); err != nil {
		return persistenceErr(err)
	}

	c.alarm.Disarm()
	c.reg.Add(user.ID, conn, isHost, now)
	if previousHost != "" {
		c.reg.SetHost(previousHost, false)
	}
	c.monitor.Start()

	log.Info().Str("module", "core.coordinator").Str("room", c.roomID).
		Str("user", user.ID).Bool("host", isHost).Msg("user joined")

	state := rec.State()
	joined := *user
	_ = conn.Send(protocol.Event{Type: protocol.EventJoined, RoomState: &state})
	c.router.Broadcast(user.ID, protocol.Event{Type: protocol.EventUserJoined, JoinedUser: &joined, RoomState: &state})
	if reclaimed {
		c.router.Broadcast("", protocol.Event{
			Type:           protocol.EventHostChanged,
			NewHostID:      user.ID,
			PreviousHostID: previousHost,
		})
	}
	return nil
}

func (c *Coordinator) handleLeave(conn Conn, msg protocol.Message) error {
	c.removeUser(msg.UserID, departLeave)
	conn.CloseWithCode(protocol.CloseNormalLeave, "leave")
	return nil
}

// removeUser is the one removal routine behind leave, disconnect and idle
// eviction. A second removal for an already-removed user is a no-op.
func (c *Coordinator) removeUser(userID string, reason departReason) {
	hadConn := c.reg.Remove(userID)
	removed := false
	if c.record != nil {
		removed = c.record.RemoveUser(userID)
	}
	if !hadConn && !removed {
		return
	}
	log.Info().Str("module", "core.coordinator").Str("room", c.roomID).
		Str("user", userID).Int("reason", int(reason)).Msg("user removed")
	rec := c.record
	if rec == nil {
		return
	}

	now := c.now()
	rec.LastActivity = now

	newHost := ""
	if rec.HostID == userID && len(rec.Users) > 0 {
		// Deterministic failover: first remaining user in list order.
		first := rec.Users[0]
		rec.SetHost(first.ID)
		c.reg.SetHost(first.ID, true)
		newHost = first.ID
	}

	if len(rec.Users) == 0 {
		if err := c.persist(); err != nil {
			log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.roomID).Msg("persist empty room failed")
		}
		c.monitor.Stop()
		// Keep the record around for the grace period so a same-room
		// reconnect can recover state; the alarm performs final deletion.
		c.alarm.Arm(now.Add(c.cfg.EmptyGrace))
		return
	}

	if err := c.persist(); err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.roomID).Msg("persist after removal failed")
	}

	evtType := protocol.EventUserDisconnected
	if reason == departLeave {
		evtType = protocol.EventUserLeft
	}
	state := rec.State()
	c.router.Broadcast(userID, protocol.Event{
		Type:       evtType,
		LeftUserID: userID,
		NewHostID:  newHost,
		RoomState:  &state,
	})
}

func (c *Coordinator) handleRenameRoom(conn Conn, msg protocol.Message) error {
	if c.record == nil {
		return &Error{Kind: KindNotFound, Err: ErrRoomNotFound}
	}
	if msg.UserID != c.record.HostID {
		return authorizationErr(ErrNotHost)
	}
	name, err := domain.NormalizeRoomName(msg.NewRoomName)
	if err != nil {
		return validationErr(err)
	}
	c.record.Name = name
	c.record.LastActivity = c.now()
	if err := c.persist(); err != nil {
		return persistenceErr(err)
	}
	state := c.record.State()
	c.router.Broadcast("", protocol.Event{Type: protocol.EventRoomRenamed, NewRoomName: name, RoomState: &state})
	return nil
}

func (c *Coordinator) handleRenameUser(conn Conn, msg protocol.Message) error {
	if c.record == nil {
		return &Error{Kind: KindNotFound, Err: ErrRoomNotFound}
	}
	u := c.record.FindUser(msg.UserID)
	if u == nil {
		return &Error{Kind: KindNotFound, Err: ErrUserNotFound}
	}
	name, err := domain.NormalizeUserName(msg.NewUserName)
	if err != nil {
		return validationErr(err)
	}
	u.Name = name
	c.record.LastActivity = c.now()
	if err := c.persist(); err != nil {
		return persistenceErr(err)
	}
	state := c.record.State()
	c.router.Broadcast("", protocol.Event{Type: protocol.EventUserRenamed, UserID: u.ID, NewUserName: name, RoomState: &state})
	return nil
}

// handleRelay is pure store-and-forward: the envelope goes to the target
// verbatim, payload untouched.
func (c *Coordinator) handleRelay(msg protocol.Message) error {
	if msg.TargetUserID == "" {
		return validationErr(errors.New("targetUserId required"))
	}
	if err := c.router.Unicast(msg.TargetUserID, msg); err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			return &Error{Kind: KindNotFound, Err: fmt.Errorf("%w: %s", ErrTargetNotFound, msg.TargetUserID)}
		}
		return &Error{Kind: KindInternal, Err: err}
	}
	return nil
}

// handleKeepAlive lets an active client refresh its activity timestamp
// without touching room state. The dispatcher already touched the registry.
func (c *Coordinator) handleKeepAlive(conn Conn, msg protocol.Message) error {
	_ = conn.Send(protocol.Event{Type: protocol.EventKeepAliveAck, Timestamp: c.now().UnixMilli()})
	return nil
}

// sweepIdle evicts connections idle past the timeout, reusing the shared
// removal routine, and stops the monitor once the registry is empty.
func (c *Coordinator) sweepIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.cfg.IdleTimeout)
	for _, id := range c.reg.IdleBefore(cutoff) {
		conn, _ := c.reg.Get(id)
		c.removeUser(id, departEvict)
		if conn != nil {
			conn.CloseWithCode(protocol.CloseNormalLeave, "idle timeout")
		}
		log.Info().Str("module", "core.coordinator").Str("room", c.roomID).Str("user", id).Msg("idle connection evicted")
	}
	if c.reg.Len() == 0 {
		c.monitor.Stop()
	}
}

// handleAlarm is the durable wake-up for empty-room deletion. The record is
// reloaded on wake: if still empty and the grace period has fully elapsed it
// is deleted, otherwise the alarm is re-armed for the remainder.
func (c *Coordinator) handleAlarm(now time.Time) {
	c.mu.Lock()
	fn := c.onIdle
	deleted := c.wake(now)
	c.mu.Unlock()
	if deleted && fn != nil {
		fn()
	}
}

// wake does the alarm work; caller holds mu. Reports whether the record was
// deleted.
func (c *Coordinator) wake(now time.Time) bool {
	data, err := c.store.Get(roomRecordKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		c.record = nil
		c.loaded = true
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.roomID).Msg("alarm reload failed")
		return false
	}
	var rec domain.RoomRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.roomID).Msg("alarm decode failed")
		return false
	}
	c.record = &rec
	c.loaded = true

	if len(rec.Users) > 0 {
		// A join intervened; the room is live again.
		return false
	}
	deadline := rec.LastActivity.Add(c.cfg.EmptyGrace)
	if now.Before(deadline) {
		c.alarm.Arm(deadline)
		return false
	}
	if err := c.store.Delete(roomRecordKey); err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.roomID).Msg("room delete failed")
		return false
	}
	c.record = nil
	log.Info().Str("module", "core.coordinator").Str("room", c.roomID).Msg("empty room deleted")
	return true
}
