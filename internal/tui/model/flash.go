package model

import (
	"sync"
	"time"
)

type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashError
)

// Flash is a status line notice that disappears on its own.
type Flash struct {
	mu      sync.RWMutex
	message string
	level   FlashLevel
	expires time.Time
}

// Set shows an informational notice for d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.set(msg, FlashInfo, d)
}

// Error shows err for five seconds.
func (f *Flash) Error(prefix string, err error) {
	f.set(prefix+": "+err.Error(), FlashError, 5*time.Second)
}

func (f *Flash) set(msg string, level FlashLevel, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.level = level
	f.expires = time.Now().Add(d)
}

// Get returns the current notice, or "" once it expired.
func (f *Flash) Get() (string, FlashLevel) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", FlashInfo
	}
	return f.message, f.level
}
