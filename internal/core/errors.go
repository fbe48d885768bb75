package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound    = "room_not_found"
	ErrCodeInvalidIdentity = "invalid_identity"
	ErrCodeInvalidPayload  = "invalid_payload"
	ErrCodePersistence     = "persistence_failure"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidIdentity = errors.New("connection has neither user nor session")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
