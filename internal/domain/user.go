// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxUserIDLen   = 64
	MaxUserNameLen = 36
	MaxRoomNameLen = 64
)

var (
	ErrNameEmpty     = errors.New("name empty")
	ErrNameTooLong   = errors.New("name too long")
	ErrUserIDInvalid = errors.New("user id missing or too long")
)

// User is a room participant as persisted inside a RoomRecord. Its presence
// in the record is independent of whether a live connection exists; a backend
// restart can leave Users with no connection behind.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsHost      bool      `json:"isHost"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals elsewhere.
func NewUser(id, name string, isHost bool, now time.Time) (*User, error) {
	if id == "" || len(id) > MaxUserIDLen {
		return nil, ErrUserIDInvalid
	}
	name, err := NormalizeUserName(name)
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Name: name, IsHost: isHost, IsConnected: true, JoinedAt: now}, nil
}

// NormalizeUserName trims and bounds-checks a display name.
func NormalizeUserName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrNameEmpty
	}
	if len(name) > MaxUserNameLen {
		return "", ErrNameTooLong
	}
	return name, nil
}

// NormalizeRoomName trims and bounds-checks a room display name.
func NormalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return "", ErrNameTooLong
	}
	return name, nil
}
