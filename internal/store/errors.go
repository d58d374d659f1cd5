package store

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownChat is returned when the target chat id does not exist.
	ErrUnknownChat = errors.New("unknown chat")
	// ErrUnknownUser is returned when a membership would reference a user that does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrInvalidMessage is returned when a message has neither content nor an attachment.
	ErrInvalidMessage = errors.New("message needs content or an attachment")
	// ErrInvalidMembers is returned for a direct chat with oneself or a member set that cannot form a chat.
	ErrInvalidMembers = errors.New("invalid chat members")
	// ErrStoreFailure matches every *FailureError.
	ErrStoreFailure = errors.New("store failure")
)

// FailureError reports a durable write or read that did not complete.
type FailureError struct {
	Op  string
	Err error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("store failure: %s: %v", e.Op, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStoreFailure) hold for any FailureError.
func (e *FailureError) Is(target error) bool { return target == ErrStoreFailure }

func failure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FailureError{Op: op, Err: err}
}
