package api

import "time"

type User struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Chat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	Members   []int64   `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID            int64     `json:"id"`
	ChatID        int64     `json:"chat_id"`
	SenderID      int64     `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	Content       string    `json:"content,omitempty"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateUserRequest struct {
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

type UserReply struct {
	User User `json:"user"`
}

type IssueTokenRequest struct {
	UserID int64 `json:"user_id"`
}

type TokenReply struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreateDirectChatRequest struct {
	UserA int64 `json:"user_a"`
	UserB int64 `json:"user_b"`
}

type CreateGroupChatRequest struct {
	Creator   int64   `json:"creator"`
	Name      string  `json:"name,omitempty"`
	MemberIDs []int64 `json:"member_ids"`
}

type ChatReply struct {
	Chat    Chat   `json:"chat"`
	Outcome string `json:"outcome"`
}

type HistoryRequest struct {
	ChatID int64 `json:"chat_id"`
}

type HistoryReply struct {
	Messages []Message `json:"messages"`
}

type StatusRequest struct{}

type StatusReply struct {
	Instance      string    `json:"instance"`
	State         string    `json:"state"`
	StateSince    time.Time `json:"state_since"`
	UptimeMs      int64     `json:"uptime_ms"`
	ListenAddr    string    `json:"listen_addr"`
	Users         int64     `json:"users"`
	Chats         int64     `json:"chats"`
	Messages      int64     `json:"messages"`
	Rooms         int       `json:"rooms"`
	Subscriptions int       `json:"subscriptions"`
	DroppedEvents uint64    `json:"dropped_events"`
}

// WatchRequest filters the message stream to one chat when ChatID is set.
type WatchRequest struct {
	ChatID int64 `json:"chat_id,omitempty"`
}

type MessageEvent struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Message    Message   `json:"message"`
	Delivered  int       `json:"delivered"`
	Skipped    int       `json:"skipped"`
}
