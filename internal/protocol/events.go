package protocol

import "github.com/Subjective/watch-together-sub000/internal/domain"

// EventType identifies an outbound server event.
type EventType string

const (
	EventCreated          EventType = "created"
	EventJoined           EventType = "joined"
	EventUserJoined       EventType = "user-joined"
	EventUserLeft         EventType = "user-left"
	EventUserDisconnected EventType = "user-disconnected"
	EventHostChanged      EventType = "host-changed"
	EventRoomRenamed      EventType = "room-renamed"
	EventUserRenamed      EventType = "user-renamed"
	EventError            EventType = "error"
	EventKeepAliveAck     EventType = "keep-alive-ack"
)

// Event is the envelope for every outbound frame except relayed signaling
// messages, which are forwarded as the original Message.
type Event struct {
	Type EventType `json:"type"`

	RoomState  *domain.RoomState `json:"roomState,omitempty"`
	JoinedUser *domain.User      `json:"joinedUser,omitempty"`

	LeftUserID     string `json:"leftUserId,omitempty"`
	NewHostID      string `json:"newHostId,omitempty"`
	PreviousHostID string `json:"previousHostId,omitempty"`

	NewRoomName string `json:"newRoomName,omitempty"`
	UserID      string `json:"userId,omitempty"`
	NewUserName string `json:"newUserName,omitempty"`

	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}
