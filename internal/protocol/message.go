// Package protocol defines the websocket wire format: the inbound message
// envelope, outbound events, and the close codes clients branch on.
package protocol

import "encoding/json"

// MessageType identifies an inbound client message.
type MessageType string

const (
	TypeCreateRoom   MessageType = "create-room"
	TypeJoinRoom     MessageType = "join-room"
	TypeLeaveRoom    MessageType = "leave-room"
	TypeRenameRoom   MessageType = "rename-room"
	TypeRenameUser   MessageType = "rename-user"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
	TypeKeepAlive    MessageType = "keep-alive"
)

// IsSignaling reports whether the message is a WebRTC signaling relay. The
// payload of these messages is opaque to the backend and forwarded verbatim.
func (t MessageType) IsSignaling() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

// Message is the single envelope for every inbound frame. Per-type fields are
// flattened into it; unused fields stay empty on the wire.
type Message struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`

	// create-room / join-room
	RoomName string `json:"roomName,omitempty"`
	UserName string `json:"userName,omitempty"`

	// rename-room / rename-user
	NewRoomName string `json:"newRoomName,omitempty"`
	NewUserName string `json:"newUserName,omitempty"`

	// offer / answer / ice-candidate
	TargetUserID string          `json:"targetUserId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Close codes in the RFC 6455 private-use range. Clients branch on the cause
// of a close without parsing a body.
const (
	CloseNormalLeave    = 4000
	CloseRoomNotFound   = 4004
	CloseRoomIDMismatch = 4005
	CloseDuplicateJoin  = 4009
)
