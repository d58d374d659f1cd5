package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// AppendMessage persists a message and returns it with its id and created_at.
// It does not check membership; callers authorize the sender first.
// The row is committed before AppendMessage returns, so History sees it at once.
func (db *DB) AppendMessage(ctx context.Context, nm NewMessage) (*Message, error) {
	if strings.TrimSpace(nm.Content) == "" && strings.TrimSpace(nm.AttachmentRef) == "" {
		return nil, ErrInvalidMessage
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, failure("begin append", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chats WHERE id = ?)`, nm.ChatID).Scan(&exists); err != nil {
		return nil, failure("lookup chat", err)
	}
	if !exists {
		return nil, ErrUnknownChat
	}

	m := &Message{
		ChatID:        nm.ChatID,
		SenderID:      nm.SenderID,
		Content:       nm.Content,
		AttachmentRef: nm.AttachmentRef,
		CreatedAt:     time.Now().UnixMilli(),
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, content, attachment_ref, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ChatID, m.SenderID, m.Content, m.AttachmentRef, m.CreatedAt)
	if err != nil {
		return nil, failure("insert message", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return nil, failure("insert message", err)
	}

	var name, avatar sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT display_name, avatar_ref FROM users WHERE id = ?`, m.SenderID).Scan(&name, &avatar)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, failure("lookup sender", err)
	}
	m.SenderName = senderLabel(m.SenderID, name.String)
	m.SenderAvatar = avatar.String

	if err := tx.Commit(); err != nil {
		return nil, failure("commit message", err)
	}
	return m, nil
}

// History returns every message of a chat in ascending id order.
// There is no pagination: the whole log is read on each call.
func (db *DB) History(ctx context.Context, chatID int64) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.attachment_ref, m.created_at,
		       COALESCE(u.display_name, ''), COALESCE(u.avatar_ref, '')
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.id ASC`, chatID)
	if err != nil {
		return nil, failure("history", err)
	}
	return scanMessages(rows, "history")
}

// SearchMessages returns messages whose content contains query, restricted to the
// chats userID is a member of, newest first.
func (db *DB) SearchMessages(ctx context.Context, userID int64, query string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.attachment_ref, m.created_at,
		       COALESCE(u.display_name, ''), COALESCE(u.avatar_ref, '')
		FROM messages m
		JOIN memberships mb ON mb.chat_id = m.chat_id AND mb.user_id = ?
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.content LIKE ? ESCAPE '\'
		ORDER BY m.id DESC
		LIMIT ?`, userID, pattern, limit)
	if err != nil {
		return nil, failure("search messages", err)
	}
	return scanMessages(rows, "search messages")
}

func scanMessages(rows *sql.Rows, op string) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.AttachmentRef, &m.CreatedAt,
			&m.SenderName, &m.SenderAvatar); err != nil {
			return nil, failure(op, err)
		}
		m.SenderName = senderLabel(m.SenderID, m.SenderName)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, failure(op, err)
	}
	return msgs, nil
}

func senderLabel(id int64, name string) string {
	return (&User{ID: id, DisplayName: name}).Label()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
