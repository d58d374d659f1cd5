package gateway

import (
	"time"

	"github.com/matheus3301/huddle/internal/store"
	"github.com/samber/lo"
)

// Inbound event types.
const (
	TypeAuthenticate = "authenticate"
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeSendMessage  = "send_message"
	TypeGetHistory   = "get_history"
)

// Outbound event types.
const (
	TypeReceiveMessage = "receive_message"
	TypeAuthenticated  = "authenticated"
	TypeJoined         = "joined"
	TypeLeft           = "left"
	TypeHistory        = "history"
	TypeError          = "error"
)

// MaxContentLength bounds the text of a single message in bytes.
const MaxContentLength = 8192

// Inbound is a frame sent by a connection. Ref is echoed back on replies so
// clients can correlate them.
type Inbound struct {
	Type          string `json:"type" validate:"required,oneof=authenticate join leave send_message get_history"`
	Ref           string `json:"ref,omitempty" validate:"max=64"`
	Token         string `json:"token,omitempty" validate:"required_if=Type authenticate"`
	ChatID        int64  `json:"chat_id,omitempty" validate:"required_unless=Type authenticate,gte=0"`
	Content       string `json:"content,omitempty" validate:"max=8192"`
	AttachmentRef string `json:"attachment_ref,omitempty" validate:"max=128"`
}

// ReceiveMessage is pushed to every subscriber of a chat after a message is stored.
type ReceiveMessage struct {
	Type              string    `json:"type"`
	ID                int64     `json:"id"`
	ChatID            int64     `json:"chat_id"`
	SenderID          int64     `json:"sender_id"`
	SenderDisplayName string    `json:"sender_display_name"`
	SenderAvatarRef   string    `json:"sender_avatar_ref,omitempty"`
	Content           string    `json:"content,omitempty"`
	AttachmentRef     string    `json:"attachment_ref,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Ack confirms authenticate, join and leave.
type Ack struct {
	Type   string `json:"type"`
	Ref    string `json:"ref,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
}

// HistoryEvent answers get_history.
type HistoryEvent struct {
	Type     string           `json:"type"`
	Ref      string           `json:"ref,omitempty"`
	ChatID   int64            `json:"chat_id"`
	Messages []ReceiveMessage `json:"messages"`
}

// ErrorEvent reports a refused operation to the calling connection only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToReceiveMessage converts a stored message to its wire form.
func ToReceiveMessage(m store.Message) ReceiveMessage {
	return ReceiveMessage{
		Type:              TypeReceiveMessage,
		ID:                m.ID,
		ChatID:            m.ChatID,
		SenderID:          m.SenderID,
		SenderDisplayName: m.SenderName,
		SenderAvatarRef:   m.SenderAvatar,
		Content:           m.Content,
		AttachmentRef:     m.AttachmentRef,
		CreatedAt:         time.UnixMilli(m.CreatedAt).UTC(),
	}
}

// ToReceiveMessages converts a history slice.
func ToReceiveMessages(msgs []store.Message) []ReceiveMessage {
	return lo.Map(msgs, func(m store.Message, _ int) ReceiveMessage {
		return ToReceiveMessage(m)
	})
}
