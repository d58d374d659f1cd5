// Package gateway implements the real-time entry point: it binds identities to
// connections, authorizes join, leave and send against chat membership, and
// fans stored messages out to the subscribers of a room.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/keylock"
	"github.com/matheus3301/huddle/internal/room"
	"github.com/matheus3301/huddle/internal/store"
	"go.uber.org/zap"
)

// Members answers the authorization question. *chat.Registry satisfies it.
type Members interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	Chat(ctx context.Context, chatID int64) (*store.Chat, error)
}

// Messages is the durable log. *store.DB satisfies it.
type Messages interface {
	AppendMessage(ctx context.Context, nm store.NewMessage) (*store.Message, error)
	History(ctx context.Context, chatID int64) ([]store.Message, error)
}

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Verify(token string) (int64, error)
}

// Attachments reports whether an attachment ref was issued by the blob
// store. *blob.Store satisfies it.
type Attachments interface {
	Exists(ref string) bool
}

// Options tune gateway behavior.
type Options struct {
	// NotifyJoinRefusal sends an error event when a join is refused.
	// Refusals are silent otherwise.
	NotifyJoinRefusal bool
	// Attachments, when set, makes sends with an unknown attachment ref fail
	// with store.ErrInvalidMessage.
	Attachments Attachments
}

// MessageAppended is the payload of bus.KindMessageAppended.
type MessageAppended struct {
	Message   store.Message
	Delivered int
	Skipped   int
}

// RoomChange is the payload of bus.KindRoomJoined and bus.KindRoomLeft.
type RoomChange struct {
	ChatID int64
	UserID int64
	ConnID string
}

// SendRequest carries the client-controlled fields of a send. The sender is
// always taken from the connection.
type SendRequest struct {
	ChatID        int64
	Content       string
	AttachmentRef string
}

// Gateway routes authenticated connections to chat rooms and serializes each
// chat's append and broadcast.
type Gateway struct {
	members  Members
	messages Messages
	auth     Authenticator
	rooms    *room.Directory
	chats    *keylock.Map[int64]
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options

	mu    sync.Mutex
	conns map[string]*Conn
}

// New creates a gateway. b may be nil.
func New(members Members, messages Messages, auth Authenticator, rooms *room.Directory, b *bus.Bus, logger *zap.Logger, opts Options) *Gateway {
	return &Gateway{
		members:  members,
		messages: messages,
		auth:     auth,
		rooms:    rooms,
		chats:    keylock.New[int64](),
		bus:      b,
		logger:   logger,
		opts:     opts,
		conns:    make(map[string]*Conn),
	}
}

// Connect creates a connection tracked by the gateway so Shutdown can reach it.
func (g *Gateway) Connect(remote string, buffer int) *Conn {
	c := NewConn(remote, buffer)
	g.mu.Lock()
	g.conns[c.ID()] = c
	g.mu.Unlock()
	return c
}

// Connections returns the number of tracked open connections.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown disconnects every tracked connection. Transports observe the
// closed outbound queue and close their sockets.
func (g *Gateway) Shutdown() int {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		g.Disconnect(c)
	}
	return len(conns)
}

// Rooms exposes the directory for status reporting.
func (g *Gateway) Rooms() *room.Directory { return g.rooms }

// Authenticate verifies token and binds its user to c. A connection is bound
// once; presenting a token for a different user is refused.
func (g *Gateway) Authenticate(_ context.Context, c *Conn, token string) (int64, error) {
	userID, err := g.auth.Verify(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	bound, ok := c.bind(userID)
	if !ok {
		if c.State() == Closed {
			return 0, fmt.Errorf("%w: connection closed", ErrUnauthenticated)
		}
		return 0, fmt.Errorf("%w: connection already bound to user %d", ErrUnauthorized, bound)
	}
	g.logger.Debug("connection authenticated", zap.String("conn", c.ID()), zap.Int64("user_id", userID))
	return userID, nil
}

// Join subscribes c to chatID if its identity is a member. Joining twice is a
// no-op. A chat that does not exist has no members, so it is refused the same way.
func (g *Gateway) Join(ctx context.Context, c *Conn, chatID int64) error {
	userID, err := g.authorize(ctx, c, chatID)
	if err != nil {
		return err
	}
	if g.rooms.Add(chatID, c) {
		if c.State() == Closed {
			// Lost a race with Disconnect.
			g.rooms.Remove(chatID, c)
			return ErrUnauthenticated
		}
		g.logger.Debug("joined room", zap.String("conn", c.ID()), zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
		g.publish(bus.KindRoomJoined, RoomChange{ChatID: chatID, UserID: userID, ConnID: c.ID()})
	}
	return nil
}

// Leave unsubscribes c from chatID. Leaving a room that was never joined is a no-op.
func (g *Gateway) Leave(c *Conn, chatID int64) bool {
	if !g.rooms.Remove(chatID, c) {
		return false
	}
	userID, _ := c.UserID()
	g.logger.Debug("left room", zap.String("conn", c.ID()), zap.Int64("chat_id", chatID))
	g.publish(bus.KindRoomLeft, RoomChange{ChatID: chatID, UserID: userID, ConnID: c.ID()})
	return true
}

// Send persists a message from c's identity and broadcasts it to every
// subscriber of the chat, the sender's own connections included. Membership is
// checked on every send, so a subscription alone never grants publishing.
func (g *Gateway) Send(ctx context.Context, c *Conn, req SendRequest) (*store.Message, error) {
	userID, ok := c.UserID()
	if !ok {
		return nil, ErrUnauthenticated
	}
	return g.SendFor(ctx, userID, req)
}

// SendFor is Send for callers that authenticate outside a connection, such as
// an attachment upload that posts its message in the same request. Append and
// broadcast run under a per-chat lock so live delivery follows message id order.
func (g *Gateway) SendFor(ctx context.Context, userID int64, req SendRequest) (*store.Message, error) {
	if err := g.checkMember(ctx, req.ChatID, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.AttachmentRef) == "" {
		return nil, store.ErrInvalidMessage
	}
	if len(req.Content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", store.ErrInvalidMessage, MaxContentLength)
	}
	if req.AttachmentRef != "" && g.opts.Attachments != nil && !g.opts.Attachments.Exists(req.AttachmentRef) {
		return nil, fmt.Errorf("%w: unknown attachment %q", store.ErrInvalidMessage, req.AttachmentRef)
	}

	unlock := g.chats.Lock(req.ChatID)
	defer unlock()

	msg, err := g.messages.AppendMessage(ctx, store.NewMessage{
		ChatID:        req.ChatID,
		SenderID:      userID,
		Content:       req.Content,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(ToReceiveMessage(*msg))
	if err != nil {
		return msg, fmt.Errorf("encode message %d: %w", msg.ID, err)
	}
	delivered, skipped := g.rooms.Broadcast(req.ChatID, payload)
	if skipped > 0 {
		g.logger.Warn("fanout skipped subscribers",
			zap.Int64("chat_id", req.ChatID),
			zap.Int64("message_id", msg.ID),
			zap.Int("delivered", delivered),
			zap.Int("skipped", skipped),
		)
	}
	g.publish(bus.KindMessageAppended, MessageAppended{Message: *msg, Delivered: delivered, Skipped: skipped})
	return msg, nil
}

// History returns the chat's messages in ascending id order for c's identity.
func (g *Gateway) History(ctx context.Context, c *Conn, chatID int64) ([]store.Message, error) {
	userID, ok := c.UserID()
	if !ok {
		return nil, ErrUnauthenticated
	}
	return g.HistoryFor(ctx, userID, chatID)
}

// HistoryFor is History for callers that authenticate outside a connection.
func (g *Gateway) HistoryFor(ctx context.Context, userID, chatID int64) ([]store.Message, error) {
	if err := g.checkMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return g.messages.History(ctx, chatID)
}

// checkMember refuses non-members with ErrUnauthorized, or with
// store.ErrUnknownChat when the chat does not exist at all.
func (g *Gateway) checkMember(ctx context.Context, chatID, userID int64) error {
	member, err := g.members.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if member {
		return nil
	}
	c, err := g.members.Chat(ctx, chatID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("chat %d: %w", chatID, store.ErrUnknownChat)
	}
	return ErrUnauthorized
}

// Disconnect removes c from every room and closes its outbound queue. It is
// safe to call more than once.
func (g *Gateway) Disconnect(c *Conn) {
	userID, _ := c.UserID()
	g.mu.Lock()
	delete(g.conns, c.ID())
	g.mu.Unlock()
	if !c.close() {
		return
	}
	left := g.rooms.Drop(c)
	for _, chatID := range left {
		g.publish(bus.KindRoomLeft, RoomChange{ChatID: chatID, UserID: userID, ConnID: c.ID()})
	}
	g.logger.Debug("connection closed", zap.String("conn", c.ID()), zap.Int("rooms", len(left)))
}

func (g *Gateway) authorize(ctx context.Context, c *Conn, chatID int64) (int64, error) {
	userID, ok := c.UserID()
	if !ok {
		return 0, ErrUnauthenticated
	}
	member, err := g.members.IsMember(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	if !member {
		return 0, ErrUnauthorized
	}
	return userID, nil
}

func (g *Gateway) publish(kind string, payload any) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(bus.NewEvent(kind, payload))
}
