package gateway

import (
	"errors"

	"github.com/matheus3301/huddle/internal/store"
)

var (
	// ErrUnauthenticated means the connection has no bound identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized means the identity is not a member of the target chat.
	ErrUnauthorized = errors.New("unauthorized")
)

// Error codes carried by outbound error events and mapped by the HTTP and RPC boundaries.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthenticated = "unauthenticated"
	CodeUnauthorized    = "unauthorized"
	CodeInvalidMessage  = "invalid_message"
	CodeUnknownChat     = "unknown_chat"
	CodeUnknownUser     = "unknown_user"
	CodeInvalidMembers  = "invalid_members"
	CodeStoreFailure    = "store_failure"
)

// Code classifies err into one of the Code constants.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, store.ErrInvalidMessage):
		return CodeInvalidMessage
	case errors.Is(err, store.ErrUnknownChat):
		return CodeUnknownChat
	case errors.Is(err, store.ErrUnknownUser):
		return CodeUnknownUser
	case errors.Is(err, store.ErrInvalidMembers):
		return CodeInvalidMembers
	case errors.Is(err, store.ErrStoreFailure):
		return CodeStoreFailure
	default:
		return CodeBadRequest
	}
}
