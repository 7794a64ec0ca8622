package domain

import "time"

// ControlMode decides who may drive playback in a room.
type ControlMode string

const (
	ControlHostOnly   ControlMode = "HOST_ONLY"
	ControlFreeForAll ControlMode = "FREE_FOR_ALL"
)

// RoomRecord is the durable state of one room. It is owned exclusively by the
// room's coordinator and written back to the store after every mutation.
//
// Invariant: at most one User has IsHost=true, and when one does its ID equals
// HostID. HostID may point at a user that is not present in Users while a
// recovery window is open.
type RoomRecord struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	HostID       string      `json:"hostId"`
	Users        []*User     `json:"users"`
	ControlMode  ControlMode `json:"controlMode"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastActivity time.Time   `json:"lastActivity"`

	// Recovery fields are transient: set when a restart is detected with
	// persisted members and no live connections, cleared once the original
	// host reclaims its seat or the window times out.
	RecoveryStarted *time.Time `json:"recoveryStarted,omitempty"`
	OriginalHostID  string     `json:"originalHostId,omitempty"`
}

// NewRoomRecord builds a fresh record with the creator as its sole, hosting
// member.
func NewRoomRecord(id, name string, host *User, now time.Time) *RoomRecord {
	host.IsHost = true
	return &RoomRecord{
		ID:           id,
		Name:         name,
		HostID:       host.ID,
		Users:        []*User{host},
		ControlMode:  ControlHostOnly,
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (r *RoomRecord) FindUser(id string) *User {
	for _, u := range r.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// RemoveUser deletes the user from the ordered list, preserving the order of
// the remaining users. Reports whether anything was removed.
func (r *RoomRecord) RemoveUser(id string) bool {
	for i, u := range r.Users {
		if u.ID == id {
			r.Users = append(r.Users[:i], r.Users[i+1:]...)
			return true
		}
	}
	return false
}

// SetHost makes the given user the single host, demoting everyone else.
func (r *RoomRecord) SetHost(id string) {
	r.HostID = id
	for _, u := range r.Users {
		u.IsHost = u.ID == id
	}
}

// ClearRecovery drops the restart-recovery window.
func (r *RoomRecord) ClearRecovery() {
	r.RecoveryStarted = nil
	r.OriginalHostID = ""
}

// RoomState is the client-visible snapshot carried by created/joined replies
// and the room-info query. Users are copied so callers can never reach back
// into coordinator-owned state.
type RoomState struct {
	RoomID      string      `json:"roomId"`
	RoomName    string      `json:"roomName"`
	HostID      string      `json:"hostId"`
	ControlMode ControlMode `json:"controlMode"`
	Users       []User      `json:"users"`
}

// State builds the snapshot for the current record.
func (r *RoomRecord) State() RoomState {
	users := make([]User, 0, len(r.Users))
	for _, u := range r.Users {
		users = append(users, *u)
	}
	return RoomState{
		RoomID:      r.ID,
		RoomName:    r.Name,
		HostID:      r.HostID,
		ControlMode: r.ControlMode,
		Users:       users,
	}
}
