package core

import (
	"errors"
	"fmt"
)

// Kind classifies a handler failure; the dispatcher is the single place that
// converts a Kind into an outbound error event.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindPersistence   Kind = "persistence"
	KindInternal      Kind = "internal"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomMismatch   = errors.New("room id mismatch")
	ErrDuplicateJoin  = errors.New("user already connected")
	ErrUserNotFound   = errors.New("user not in room")
	ErrTargetNotFound = errors.New("target user not connected")
	ErrNotHost        = errors.New("only the host may do this")
)

// Error wraps a handler failure with its Kind and, when the socket must be
// closed, the close code the client branches on.
type Error struct {
	Kind      Kind
	Err       error
	CloseCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func validationErr(err error) *Error {
	return &Error{Kind: KindValidation, Err: err}
}

func authorizationErr(err error) *Error {
	return &Error{Kind: KindAuthorization, Err: err}
}

func notFoundErr(err error, closeCode int) *Error {
	return &Error{Kind: KindNotFound, Err: err, CloseCode: closeCode}
}

func persistenceErr(err error) *Error {
	return &Error{Kind: KindPersistence, Err: fmt.Errorf("persist: %w", err)}
}
