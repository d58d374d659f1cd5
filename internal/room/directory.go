// Package room keeps the process-local map of chat id to live subscribers.
// It is rebuilt from nothing on every start and never persisted.
package room

import (
	"slices"
	"sync"
)

// Subscriber is a live connection that can receive fanout.
type Subscriber interface {
	ID() string
	// Deliver queues payload without blocking. It returns false when the
	// subscriber has gone away or cannot take more.
	Deliver(payload []byte) bool
}

// Directory maps chat ids to the subscribers currently joined to them.
// Membership changes take the directory write lock; fanout takes the read lock
// plus the room's own lock, so a Remove never interleaves with a Broadcast to
// the same chat and Broadcasts to one chat run one at a time.
type Directory struct {
	mu    sync.RWMutex
	rooms map[int64]*room
	bySub map[string]map[int64]struct{}
}

type room struct {
	mu   sync.Mutex
	subs map[string]Subscriber
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[int64]*room),
		bySub: make(map[string]map[int64]struct{}),
	}
}

// Add subscribes s to chatID. It reports false when s was already subscribed.
func (d *Directory) Add(chatID int64, s Subscriber) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[chatID]
	if !ok {
		r = &room{subs: make(map[string]Subscriber)}
		d.rooms[chatID] = r
	}
	r.mu.Lock()
	_, exists := r.subs[s.ID()]
	r.subs[s.ID()] = s
	r.mu.Unlock()

	chats, ok := d.bySub[s.ID()]
	if !ok {
		chats = make(map[int64]struct{})
		d.bySub[s.ID()] = chats
	}
	chats[chatID] = struct{}{}
	return !exists
}

// Remove unsubscribes s from chatID. It reports false when s was not subscribed.
func (d *Directory) Remove(chatID int64, s Subscriber) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(chatID, s.ID())
}

// Drop removes every subscription held by s and returns the chats it left.
func (d *Directory) Drop(s Subscriber) []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var left []int64
	for chatID := range d.bySub[s.ID()] {
		if d.removeLocked(chatID, s.ID()) {
			left = append(left, chatID)
		}
	}
	slices.Sort(left)
	return left
}

func (d *Directory) removeLocked(chatID int64, subID string) bool {
	r, ok := d.rooms[chatID]
	if !ok {
		return false
	}
	r.mu.Lock()
	_, exists := r.subs[subID]
	delete(r.subs, subID)
	empty := len(r.subs) == 0
	r.mu.Unlock()
	if empty {
		delete(d.rooms, chatID)
	}

	if chats, ok := d.bySub[subID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(d.bySub, subID)
		}
	}
	return exists
}

// Broadcast delivers payload to every current subscriber of chatID. Subscribers
// that refuse the payload are skipped; they are not retried or removed here.
func (d *Directory) Broadcast(chatID int64, payload []byte) (delivered, skipped int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[chatID]
	if !ok {
		return 0, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.Deliver(payload) {
			delivered++
		} else {
			skipped++
		}
	}
	return delivered, skipped
}

// Subscribed reports whether s is currently subscribed to chatID.
func (d *Directory) Subscribed(chatID int64, s Subscriber) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.bySub[s.ID()][chatID]
	return ok
}

// Count returns the number of subscribers of chatID.
func (d *Directory) Count(chatID int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[chatID]
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// ChatsOf returns the chats s is subscribed to, ascending.
func (d *Directory) ChatsOf(s Subscriber) []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	chats := make([]int64, 0, len(d.bySub[s.ID()]))
	for id := range d.bySub[s.ID()] {
		chats = append(chats, id)
	}
	slices.Sort(chats)
	return chats
}

// Stats reports the number of non-empty rooms and of distinct subscribers.
func (d *Directory) Stats() (rooms, subscribers int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms), len(d.bySub)
}
