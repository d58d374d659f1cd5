// Package chat holds the Membership Registry and the Chat Lifecycle operations
// that create rooms before anyone can join or publish to them.
package chat

import (
	"context"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/keylock"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Store is the persistence the registry needs. *store.DB satisfies it.
type Store interface {
	CreateDirectChat(ctx context.Context, a, b int64) (*store.Chat, store.Outcome, error)
	CreateGroupChat(ctx context.Context, creator int64, others []int64, name string) (*store.Chat, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	GetChat(ctx context.Context, id int64) (*store.Chat, error)
	ListChatsForUser(ctx context.Context, userID int64) ([]store.Chat, error)
}

// Registry maps chats to their authorized members.
type Registry struct {
	store  Store
	pairs  *keylock.Map[keylock.Pair]
	bus    *bus.Bus
	logger *zap.Logger
}

// ChatCreated is the payload of bus.KindChatCreated.
type ChatCreated struct {
	ChatID  int64
	IsGroup bool
	Members []int64
}

// NewRegistry creates a registry backed by s. b may be nil.
func NewRegistry(s Store, b *bus.Bus, logger *zap.Logger) *Registry {
	return &Registry{
		store:  s,
		pairs:  keylock.New[keylock.Pair](),
		bus:    b,
		logger: logger,
	}
}

// CreateDirectChat returns the direct chat for the unordered pair {a, b},
// creating it on first use. Callers racing on the same pair queue on the pair
// lock and the later ones observe AlreadyExists.
func (r *Registry) CreateDirectChat(ctx context.Context, a, b int64) (*store.Chat, store.Outcome, error) {
	unlock := r.pairs.Lock(keylock.PairOf(a, b))
	defer unlock()

	c, outcome, err := r.store.CreateDirectChat(ctx, a, b)
	if err != nil {
		return nil, outcome, err
	}
	if outcome == store.Created {
		r.logger.Info("direct chat created", zap.Int64("chat_id", c.ID), zap.Int64("user_a", a), zap.Int64("user_b", b))
		r.publish(ChatCreated{ChatID: c.ID, Members: []int64{a, b}})
	}
	return c, outcome, nil
}

// CreateGroupChat creates a group chat with the creator and the other users as members.
func (r *Registry) CreateGroupChat(ctx context.Context, creator int64, others []int64, name string) (*store.Chat, error) {
	c, err := r.store.CreateGroupChat(ctx, creator, others, name)
	if err != nil {
		return nil, err
	}
	r.logger.Info("group chat created", zap.Int64("chat_id", c.ID), zap.Int64("creator", creator), zap.String("name", c.Name))
	r.publish(ChatCreated{ChatID: c.ID, IsGroup: true, Members: lo.Uniq(append([]int64{creator}, others...))})
	return c, nil
}

// IsMember is the authorization predicate for every room operation. It always
// reads committed state; nothing is cached.
func (r *Registry) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	return r.store.IsMember(ctx, chatID, userID)
}

// Chat returns chat metadata, or nil when the chat does not exist.
func (r *Registry) Chat(ctx context.Context, chatID int64) (*store.Chat, error) {
	return r.store.GetChat(ctx, chatID)
}

// ChatsOf lists the chats userID belongs to.
func (r *Registry) ChatsOf(ctx context.Context, userID int64) ([]store.Chat, error) {
	return r.store.ListChatsForUser(ctx, userID)
}

func (r *Registry) publish(p ChatCreated) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.NewEvent(bus.KindChatCreated, p))
}
