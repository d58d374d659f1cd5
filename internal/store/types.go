package store

// User is the profile record of an identity; the core only reads it.
type User struct {
	ID          int64
	DisplayName string
	AvatarRef   string
	CreatedAt   int64
}

// Chat is a room scoping members and history.
type Chat struct {
	ID        int64
	Name      string
	IsGroup   bool
	CreatedAt int64
}

// Message is an appended chat message. ID is the durable ordering key.
// SenderName and SenderAvatar are filled from the users table on reads.
type Message struct {
	ID            int64
	ChatID        int64
	SenderID      int64
	Content       string
	AttachmentRef string
	CreatedAt     int64
	SenderName    string
	SenderAvatar  string
}

// NewMessage is the input of AppendMessage.
type NewMessage struct {
	ChatID        int64
	SenderID      int64
	Content       string
	AttachmentRef string
}

// Outcome tells whether a create call inserted a new row or found an existing one.
type Outcome int

const (
	Created Outcome = iota
	AlreadyExists
)

func (o Outcome) String() string {
	if o == AlreadyExists {
		return "already_exists"
	}
	return "created"
}
