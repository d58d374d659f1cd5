package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// DefaultGroupName is used when a group chat is created without a name.
const DefaultGroupName = "New group"

// CreateDirectChat returns the direct chat between a and b, creating it when the
// pair has none yet. The lookup and the insert run in one immediate transaction,
// and direct_pairs' primary key rejects a second chat for the same unordered pair.
func (db *DB) CreateDirectChat(ctx context.Context, a, b int64) (*Chat, Outcome, error) {
	if a == b {
		return nil, Created, fmt.Errorf("direct chat with oneself: %w", ErrInvalidMembers)
	}
	lowID, highID := a, b
	if lowID > highID {
		lowID, highID = highID, lowID
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Created, failure("begin direct chat", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT chat_id FROM direct_pairs WHERE user_lo = ? AND user_hi = ?`, lowID, highID).Scan(&existing)
	switch {
	case err == nil:
		c, err := getChat(ctx, tx, existing)
		if err != nil {
			return nil, AlreadyExists, failure("get direct chat", err)
		}
		return c, AlreadyExists, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, Created, failure("find direct chat", err)
	}

	names := make([]string, 0, 2)
	for _, id := range []int64{a, b} {
		var u User
		err := tx.QueryRowContext(ctx, `SELECT id, display_name FROM users WHERE id = ?`, id).
			Scan(&u.ID, &u.DisplayName)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Created, fmt.Errorf("user %d: %w", id, ErrUnknownUser)
		}
		if err != nil {
			return nil, Created, failure("lookup user", err)
		}
		names = append(names, u.Label())
	}

	c := &Chat{Name: strings.Join(names, " & "), CreatedAt: time.Now().UnixMilli()}
	if c.ID, err = insertChat(ctx, tx, c); err != nil {
		return nil, Created, failure("insert chat", err)
	}
	if err := insertMembers(ctx, tx, c.ID, []int64{a, b}); err != nil {
		return nil, Created, failure("insert members", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO direct_pairs (user_lo, user_hi, chat_id) VALUES (?, ?, ?)`, lowID, highID, c.ID); err != nil {
		return nil, Created, failure("insert direct pair", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, Created, failure("commit direct chat", err)
	}
	return c, Created, nil
}

// CreateGroupChat creates a group chat holding the creator and the given users.
// Duplicate ids are collapsed; an empty name falls back to DefaultGroupName.
func (db *DB) CreateGroupChat(ctx context.Context, creator int64, others []int64, name string) (*Chat, error) {
	members := lo.Uniq(append([]int64{creator}, others...))

	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultGroupName
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, failure("begin group chat", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range members {
		ok, err := userExists(ctx, tx, id)
		if err != nil {
			return nil, failure("lookup user", err)
		}
		if !ok {
			return nil, fmt.Errorf("user %d: %w", id, ErrUnknownUser)
		}
	}

	c := &Chat{Name: name, IsGroup: true, CreatedAt: time.Now().UnixMilli()}
	if c.ID, err = insertChat(ctx, tx, c); err != nil {
		return nil, failure("insert chat", err)
	}
	if err := insertMembers(ctx, tx, c.ID, members); err != nil {
		return nil, failure("insert members", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, failure("commit group chat", err)
	}
	return c, nil
}

// GetChat returns a chat by id, or nil when it does not exist.
func (db *DB) GetChat(ctx context.Context, id int64) (*Chat, error) {
	var c Chat
	err := db.QueryRowContext(ctx,
		`SELECT id, name, is_group, created_at FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, failure("get chat", err)
	}
	return &c, nil
}

// IsMember reports whether userID holds a membership in chatID.
func (db *DB) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM memberships WHERE chat_id = ? AND user_id = ?)`,
		chatID, userID).Scan(&exists)
	if err != nil {
		return false, failure("is member", err)
	}
	return exists, nil
}

// ChatMembers returns the user ids of a chat in ascending order.
func (db *DB) ChatMembers(ctx context.Context, chatID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT user_id FROM memberships WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, failure("chat members", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, failure("chat members", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("chat members", err)
	}
	return ids, nil
}

// ListChatsForUser returns the chats userID belongs to, most recently created first.
func (db *DB) ListChatsForUser(ctx context.Context, userID int64) ([]Chat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_at
		FROM chats c
		JOIN memberships m ON m.chat_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.id DESC`, userID)
	if err != nil {
		return nil, failure("list chats", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt); err != nil {
			return nil, failure("list chats", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list chats", err)
	}
	return chats, nil
}

func insertChat(ctx context.Context, tx *sql.Tx, c *Chat) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chats (name, is_group, created_at) VALUES (?, ?, ?)`, c.Name, c.IsGroup, c.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertMembers(ctx context.Context, tx *sql.Tx, chatID int64, userIDs []int64) error {
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (chat_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			chatID, uid); err != nil {
			return fmt.Errorf("member %d: %w", uid, err)
		}
	}
	return nil
}

func getChat(ctx context.Context, tx *sql.Tx, id int64) (*Chat, error) {
	var c Chat
	err := tx.QueryRowContext(ctx,
		`SELECT id, name, is_group, created_at FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
