package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateUser inserts a profile record and returns it with its assigned id.
func (db *DB) CreateUser(ctx context.Context, displayName, avatarRef string) (*User, error) {
	u := &User{
		DisplayName: strings.TrimSpace(displayName),
		AvatarRef:   avatarRef,
		CreatedAt:   time.Now().UnixMilli(),
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO users (display_name, avatar_ref, created_at) VALUES (?, ?, ?)`,
		u.DisplayName, u.AvatarRef, u.CreatedAt)
	if err != nil {
		return nil, failure("create user", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, failure("create user", err)
	}
	return u, nil
}

// GetUser returns a user by id, or nil when it does not exist.
func (db *DB) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := db.QueryRowContext(ctx,
		`SELECT id, display_name, avatar_ref, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.DisplayName, &u.AvatarRef, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, failure("get user", err)
	}
	return &u, nil
}

// ListUsers returns every user except excludeID, ordered by id.
func (db *DB) ListUsers(ctx context.Context, excludeID int64) ([]User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, display_name, avatar_ref, created_at FROM users WHERE id != ? ORDER BY id`, excludeID)
	if err != nil {
		return nil, failure("list users", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.AvatarRef, &u.CreatedAt); err != nil {
			return nil, failure("list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list users", err)
	}
	return users, nil
}

// Label returns the name shown for a user, falling back to "user <id>".
func (u *User) Label() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return fmt.Sprintf("user %d", u.ID)
}

func userExists(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}
