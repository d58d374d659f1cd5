package model

import (
	"fmt"
	"sync"

	"github.com/matheus3301/huddle/internal/tui/client"
)

// ViewModel caches the chat list and the open chat's messages. Live
// messages and history loads can interleave; messages are kept in id order
// without duplicates.
type ViewModel struct {
	mu sync.RWMutex

	self     int64
	chats    []client.Chat
	active   int64
	messages []client.Message
	unread   map[int64]int
	Flash    Flash
}

// NewViewModel creates a view model for the user with id self.
func NewViewModel(self int64) *ViewModel {
	return &ViewModel{self: self, unread: make(map[int64]int)}
}

// Self is the signed-in user, or 0 before the gateway confirms it.
func (vm *ViewModel) Self() int64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.self
}

func (vm *ViewModel) SetSelf(id int64) {
	vm.mu.Lock()
	vm.self = id
	vm.mu.Unlock()
}

// SetChats replaces the chat list and returns the ids not seen before.
func (vm *ViewModel) SetChats(chats []client.Chat) []int64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	known := make(map[int64]bool, len(vm.chats))
	for _, c := range vm.chats {
		known[c.ID] = true
	}
	var added []int64
	for _, c := range chats {
		if !known[c.ID] {
			added = append(added, c.ID)
		}
	}
	vm.chats = chats
	return added
}

// Chats returns a snapshot of the chat list.
func (vm *ViewModel) Chats() []client.Chat {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]client.Chat(nil), vm.chats...)
}

// ChatName falls back to the id for chats not in the list yet.
func (vm *ViewModel) ChatName(id int64) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.chats {
		if c.ID == id {
			return c.Name
		}
	}
	return fmt.Sprintf("chat %d", id)
}

// Begin makes chatID active before its history is fetched, so live messages
// arriving meanwhile are collected for Open instead of counted as unread.
func (vm *ViewModel) Begin(chatID int64) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.active == chatID {
		return
	}
	vm.active = chatID
	vm.messages = nil
	delete(vm.unread, chatID)
}

// Open makes chatID active with the given history. Messages already applied
// live that are newer than the history are kept.
func (vm *ViewModel) Open(chatID int64, history []client.Message) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	var pending []client.Message
	if vm.active == chatID {
		var last int64
		if n := len(history); n > 0 {
			last = history[n-1].ID
		}
		for _, m := range vm.messages {
			if m.ID > last {
				pending = append(pending, m)
			}
		}
	}
	vm.active = chatID
	vm.messages = append(append([]client.Message(nil), history...), pending...)
	delete(vm.unread, chatID)
}

// Close clears the active chat.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	vm.active = 0
	vm.messages = nil
	vm.mu.Unlock()
}

// Active returns the open chat id, or 0.
func (vm *ViewModel) Active() int64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Messages returns a snapshot of the open chat.
func (vm *ViewModel) Messages() []client.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]client.Message(nil), vm.messages...)
}

// Apply records a live message. It reports whether the open chat changed.
func (vm *ViewModel) Apply(m client.Message) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if m.ChatID != vm.active {
		if m.SenderID != vm.self {
			vm.unread[m.ChatID]++
		}
		return false
	}
	if n := len(vm.messages); n > 0 && m.ID <= vm.messages[n-1].ID {
		return false
	}
	vm.messages = append(vm.messages, m)
	return true
}

// Unread counts messages from others received while a chat was not open.
func (vm *ViewModel) Unread(chatID int64) int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.unread[chatID]
}
