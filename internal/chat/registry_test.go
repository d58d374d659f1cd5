package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) (*Registry, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	b := bus.New()
	return NewRegistry(db, b, zap.NewNop()), db, b
}

func TestDirectChatSameIDBothOrders(t *testing.T) {
	req := require.New(t)
	r, db, b := testRegistry(t)
	ctx := context.Background()
	events, unsub := b.Subscribe("chat.", 8)
	defer unsub()

	alice, err := db.CreateUser(ctx, "alice", "")
	req.NoError(err)
	bob, err := db.CreateUser(ctx, "bob", "")
	req.NoError(err)

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, other := alice.ID, bob.ID
			if i%2 == 0 {
				a, other = other, a
			}
			c, _, err := r.CreateDirectChat(ctx, a, other)
			if err == nil {
				ids[i] = c.ID
			}
		}()
	}
	wg.Wait()
	for _, id := range ids {
		req.NotZero(id)
		req.Equal(ids[0], id)
	}

	select {
	case evt := <-events:
		req.Equal(bus.KindChatCreated, evt.Kind)
		req.Equal(ids[0], evt.Payload.(ChatCreated).ChatID)
	case <-time.After(time.Second):
		t.Fatal("no chat.created event")
	}
	select {
	case evt := <-events:
		t.Fatalf("second chat.created event for the same pair: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLifecycle(t *testing.T) {
	req := require.New(t)
	r, db, _ := testRegistry(t)
	ctx := context.Background()
	l := NewLifecycle(r)

	alice, _ := db.CreateUser(ctx, "alice", "")
	bob, _ := db.CreateUser(ctx, "bob", "")
	carol, _ := db.CreateUser(ctx, "carol", "")

	direct, outcome, err := l.StartDirect(ctx, alice.ID, bob.ID)
	req.NoError(err)
	req.False(direct.IsGroup)
	req.Equal(store.Created, outcome)

	again, outcome, err := l.StartDirect(ctx, bob.ID, alice.ID)
	req.NoError(err)
	req.Equal(direct.ID, again.ID)
	req.Equal(store.AlreadyExists, outcome)

	group, err := l.StartGroup(ctx, alice.ID, "team", []int64{bob.ID, carol.ID})
	req.NoError(err)
	req.True(group.IsGroup)
	req.Equal("team", group.Name)

	for _, u := range []int64{alice.ID, bob.ID, carol.ID} {
		ok, err := r.IsMember(ctx, group.ID, u)
		req.NoError(err)
		req.True(ok)
	}
	ok, err := r.IsMember(ctx, direct.ID, carol.ID)
	req.NoError(err)
	req.False(ok)

	chats, err := r.ChatsOf(ctx, bob.ID)
	req.NoError(err)
	req.Len(chats, 2)

	got, err := r.Chat(ctx, group.ID)
	req.NoError(err)
	req.Equal(group.ID, got.ID)
}
