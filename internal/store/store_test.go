package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustUser(t *testing.T, db *DB, name string) *User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), name, "")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 || result.From != 2 {
		t.Errorf("from %d to %d, want 2 to 2 (init + sender index)", result.From, result.Version)
	}
}

func TestMigrateFreshDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != 2 {
		t.Errorf("got %+v, want changed from 0 to 2", *result)
	}
}

func TestMessagesTableRejectsEmptyRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	c, err := db.CreateGroupChat(ctx, a.ID, nil, "g")
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`INSERT INTO messages (chat_id, sender_id, content, attachment_ref, created_at) VALUES (?, ?, '', '', 1)`, c.ID, a.ID)
	if err == nil {
		t.Fatal("schema accepted a message with neither content nor attachment")
	}
}

func TestCreateDirectChatIsIdempotentPerPair(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")

	c1, out1, err := db.CreateDirectChat(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if out1 != Created {
		t.Errorf("first outcome = %s, want created", out1)
	}
	if c1.IsGroup {
		t.Error("direct chat flagged as group")
	}
	if c1.Name != "alice & bob" {
		t.Errorf("name = %q, want %q", c1.Name, "alice & bob")
	}

	c2, out2, err := db.CreateDirectChat(ctx, b.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if out2 != AlreadyExists {
		t.Errorf("second outcome = %s, want already_exists", out2)
	}
	if c2.ID != c1.ID {
		t.Errorf("reversed pair got chat %d, want %d", c2.ID, c1.ID)
	}

	members, err := db.ChatMembers(ctx, c1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0] != a.ID || members[1] != b.ID {
		t.Errorf("members = %v, want [%d %d]", members, a.ID, b.ID)
	}
}

func TestCreateDirectChatConcurrent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")

	const workers = 16
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			c, _, err := db.CreateDirectChat(ctx, x, y)
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}()
	}
	wg.Wait()

	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got chat %d, worker 0 got %d", i, ids[i], ids[0])
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chats WHERE is_group = 0`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("direct chats = %d, want 1", count)
	}
}

func TestCreateDirectChatRejectsSelfAndUnknown(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")

	if _, _, err := db.CreateDirectChat(ctx, a.ID, a.ID); !errors.Is(err, ErrInvalidMembers) {
		t.Errorf("self chat err = %v, want ErrInvalidMembers", err)
	}
	if _, _, err := db.CreateDirectChat(ctx, a.ID, 999); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("unknown peer err = %v, want ErrUnknownUser", err)
	}

	var chats int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&chats); err != nil {
		t.Fatal(err)
	}
	if chats != 0 {
		t.Errorf("chats = %d after refused creates, want 0", chats)
	}
}

func TestCreateGroupChat(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")
	c := mustUser(t, db, "carol")

	chat, err := db.CreateGroupChat(ctx, a.ID, []int64{b.ID, c.ID, b.ID, a.ID}, "  ")
	if err != nil {
		t.Fatal(err)
	}
	if !chat.IsGroup {
		t.Error("group chat not flagged as group")
	}
	if chat.Name != DefaultGroupName {
		t.Errorf("name = %q, want %q", chat.Name, DefaultGroupName)
	}
	members, err := db.ChatMembers(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 3 {
		t.Errorf("members = %v, want 3 distinct", members)
	}

	solo, err := db.CreateGroupChat(ctx, a.ID, nil, "notes")
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.IsMember(ctx, solo.ID, a.ID); !ok {
		t.Error("creator is not a member of a one-person group")
	}
}

func TestCreateGroupChatUnknownMemberLeavesNoRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")

	if _, err := db.CreateGroupChat(ctx, a.ID, []int64{42}, "g"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}
	var chats, members int
	_ = db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&chats)
	_ = db.QueryRow(`SELECT COUNT(*) FROM memberships`).Scan(&members)
	if chats != 0 || members != 0 {
		t.Errorf("chats=%d memberships=%d, want 0/0", chats, members)
	}
}

func TestIsMember(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")
	c := mustUser(t, db, "carol")

	chat, _, err := db.CreateDirectChat(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		user int64
		want bool
	}{
		{"first member", a.ID, true},
		{"second member", b.ID, true},
		{"outsider", c.ID, false},
		{"unknown user", 999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.IsMember(ctx, chat.ID, tt.user)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsMember(%d, %d) = %v, want %v", chat.ID, tt.user, got, tt.want)
			}
		})
	}
}

func TestAppendMessageAndHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")
	chat, _, err := db.CreateDirectChat(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}

	m1, err := db.AppendMessage(ctx, NewMessage{ChatID: chat.ID, SenderID: a.ID, Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if m1.SenderName != "alice" {
		t.Errorf("sender name = %q, want alice", m1.SenderName)
	}
	if m1.CreatedAt == 0 {
		t.Error("created_at not assigned")
	}
	m2, err := db.AppendMessage(ctx, NewMessage{ChatID: chat.ID, SenderID: b.ID, AttachmentRef: "abc.png"})
	if err != nil {
		t.Fatal(err)
	}
	if m2.ID <= m1.ID {
		t.Errorf("second id %d not greater than first %d", m2.ID, m1.ID)
	}

	history, err := db.History(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2", len(history))
	}
	if history[0].ID != m1.ID || history[0].Content != "hi" {
		t.Errorf("history[0] = %+v, want id %d content hi", history[0], m1.ID)
	}
	if history[1].AttachmentRef != "abc.png" || history[1].SenderName != "bob" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestAppendMessageErrors(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	chat, err := db.CreateGroupChat(ctx, a.ID, nil, "g")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		msg  NewMessage
		want error
	}{
		{"empty", NewMessage{ChatID: chat.ID, SenderID: a.ID}, ErrInvalidMessage},
		{"whitespace only", NewMessage{ChatID: chat.ID, SenderID: a.ID, Content: "  \n"}, ErrInvalidMessage},
		{"unknown chat", NewMessage{ChatID: 999, SenderID: a.ID, Content: "x"}, ErrUnknownChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.AppendMessage(ctx, tt.msg); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	history, err := db.History(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("got %d messages after refused appends, want 0", len(history))
	}
}

func TestAppendMessageConcurrentIDsAscend(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	chat, err := db.CreateGroupChat(ctx, a.ID, nil, "g")
	if err != nil {
		t.Fatal(err)
	}

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.AppendMessage(ctx, NewMessage{ChatID: chat.ID, SenderID: a.ID, Content: "x"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	history, err := db.History(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != n {
		t.Fatalf("got %d messages, want %d", len(history), n)
	}
	for i := 1; i < len(history); i++ {
		if history[i].ID <= history[i-1].ID {
			t.Fatalf("ids not strictly ascending at %d: %d after %d", i, history[i].ID, history[i-1].ID)
		}
	}
}

func TestListChatsForUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")
	c := mustUser(t, db, "carol")

	direct, _, err := db.CreateDirectChat(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	group, err := db.CreateGroupChat(ctx, a.ID, []int64{c.ID}, "team")
	if err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChatsForUser(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 || chats[0].ID != group.ID || chats[1].ID != direct.ID {
		t.Errorf("alice chats = %+v, want [group, direct]", chats)
	}

	chats, err = db.ListChatsForUser(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].ID != direct.ID {
		t.Errorf("bob chats = %+v, want [direct]", chats)
	}
}

func TestSearchMessagesScopedToMembership(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")
	c := mustUser(t, db, "carol")

	ab, _, _ := db.CreateDirectChat(ctx, a.ID, b.ID)
	bc, _, _ := db.CreateDirectChat(ctx, b.ID, c.ID)
	for _, nm := range []NewMessage{
		{ChatID: ab.ID, SenderID: a.ID, Content: "hello world"},
		{ChatID: ab.ID, SenderID: b.ID, Content: "100% sure"},
		{ChatID: bc.ID, SenderID: c.ID, Content: "hello carol"},
	} {
		if _, err := db.AppendMessage(ctx, nm); err != nil {
			t.Fatal(err)
		}
	}

	results, err := db.SearchMessages(ctx, a.ID, "hello", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "hello world" {
		t.Errorf("alice search = %+v, want only her chat's message", results)
	}

	results, err = db.SearchMessages(ctx, b.ID, "%", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "100% sure" {
		t.Errorf("literal %% search = %+v, want one match", results)
	}
}

func TestUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	anon := mustUser(t, db, "")

	got, err := db.GetUser(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.DisplayName != "alice" {
		t.Errorf("got %v, want alice", got)
	}
	if anon.Label() == "" {
		t.Error("anonymous user has empty label")
	}

	missing, err := db.GetUser(ctx, 999)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}

	others, err := db.ListUsers(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(others) != 1 || others[0].ID != anon.ID {
		t.Errorf("ListUsers = %+v, want only the second user", others)
	}
}

func TestFailureErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("disk full")
	err := failure("insert message", cause)
	if !errors.Is(err, ErrStoreFailure) {
		t.Error("FailureError does not match ErrStoreFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("FailureError does not unwrap to its cause")
	}
	if failure("noop", nil) != nil {
		t.Error("failure(nil) should be nil")
	}
}

func TestCounts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustUser(t, db, "alice")
	b := mustUser(t, db, "bob")
	c, _, err := db.CreateDirectChat(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.AppendMessage(ctx, NewMessage{ChatID: c.ID, SenderID: a.ID, Content: "x"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != (Counts{Users: 2, Chats: 1, Messages: 1}) {
		t.Errorf("Counts = %+v", got)
	}
}
