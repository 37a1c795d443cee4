// Package service holds the hub's event handling logic: chat fan-out,
// notifications and call signaling. It talks to connections only through Emitter.
package service

import (
	"context"
	"errors"
	"fmt"

	"tutorhub/internal/events"
	"tutorhub/internal/storage"
)

// Emitter is the connection registry as seen by the services.
type Emitter interface {
	Join(connID, room string)
	Leave(connID, room string)
	InRoom(connID, room string) bool
	RoomSize(room string) int
	EmitToRoom(room, event string, data any)
	EmitToConn(connID, event string, data any)
}

// ImageUploader stores an inline image and removes it again when the message is dropped.
type ImageUploader interface {
	Upload(ctx context.Context, senderID string, img storage.Image) (storage.StoredImage, error)
	Discard(ctx context.Context, key string) error
}

// Auditor records failures that need follow-up outside the logs.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, userID *string, fields map[string]any)
}

// ErrCallRejected marks a call join or relay that ended in a call_rejected event.
var ErrCallRejected = errors.New("call rejected")

// Error is a failure the originating connection is told about via the error event.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Payload is what goes on the wire.
func (e *Error) Payload() events.ErrorPayload {
	return events.ErrorPayload{Code: e.Code, Message: e.Message}
}

func badRequest(msg string, err error) *Error {
	return &Error{Code: events.CodeBadRequest, Message: msg, Err: err}
}

func notFound(msg string, err error) *Error {
	return &Error{Code: events.CodeNotFound, Message: msg, Err: err}
}

func internal(msg string, err error) *Error {
	return &Error{Code: events.CodeInternal, Message: msg, Err: err}
}

type nopAuditor struct{}

func (nopAuditor) Emit(context.Context, string, string, string, *string, map[string]any) {}
