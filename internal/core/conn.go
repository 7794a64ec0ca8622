// Package core implements the per-room session coordinator: the single
// authority for room membership, host election and failover, signaling relay,
// and crash/restart recovery against the durable store.
package core

// Conn is the transport endpoint of one live participant.
// Owned by the adapter; core asks for a close but never touches the socket.
type Conn interface {
	// Send enqueues an outbound frame. A full client queue returns an error
	// instead of blocking the coordinator.
	Send(v any) error

	// CloseWithCode closes the connection with a protocol close code.
	// Safe to call more than once.
	CloseWithCode(code int, reason string)
}
