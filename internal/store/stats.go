package store

import "context"

// Counts is a snapshot of table sizes reported by the admin status call.
type Counts struct {
	Users    int64
	Chats    int64
	Messages int64
}

func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM messages)`).Scan(&c.Users, &c.Chats, &c.Messages)
	if err != nil {
		return Counts{}, failure("count rows", err)
	}
	return c, nil
}
