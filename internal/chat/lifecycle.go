package chat

import (
	"context"

	"github.com/matheus3301/huddle/internal/store"
)

// Lifecycle is what the boundary calls to start chats on behalf of an authenticated user.
type Lifecycle struct {
	registry *Registry
}

// NewLifecycle wraps a registry.
func NewLifecycle(r *Registry) *Lifecycle {
	return &Lifecycle{registry: r}
}

// StartDirect opens (or reopens) the direct chat between caller and other.
// The outcome tells the boundary whether a new room was created.
func (l *Lifecycle) StartDirect(ctx context.Context, caller, other int64) (*store.Chat, store.Outcome, error) {
	return l.registry.CreateDirectChat(ctx, caller, other)
}

// StartGroup creates a named group chat with caller and memberIDs.
func (l *Lifecycle) StartGroup(ctx context.Context, caller int64, name string, memberIDs []int64) (*store.Chat, error) {
	return l.registry.CreateGroupChat(ctx, caller, memberIDs, name)
}
