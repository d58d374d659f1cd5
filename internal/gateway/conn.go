package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle state of a connection. Room subscriptions are
// tracked by the room directory, not here.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the per-connection identity context passed into every gateway
// operation. Outbound frames are queued on a bounded channel drained by the
// transport's write loop.
type Conn struct {
	id     string
	remote string

	mu     sync.RWMutex
	state  State
	userID int64
	out    chan []byte

	overflow     chan struct{}
	overflowOnce sync.Once
}

// NewConn creates an unauthenticated connection with an outbound queue of
// the given size.
func NewConn(remote string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	return &Conn{
		id:       uuid.NewString(),
		remote:   remote,
		out:      make(chan []byte, buffer),
		overflow: make(chan struct{}),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) Remote() string { return c.remote }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UserID returns the bound identity. ok is false until authentication.
func (c *Conn) UserID() (id int64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.state == Authenticated
}

// Outbound is closed when the connection is disconnected.
func (c *Conn) Outbound() <-chan []byte { return c.out }

// Overflowed is closed the first time Deliver finds the queue full. The
// transport disconnects such a connection; the client recovers via history.
func (c *Conn) Overflowed() <-chan struct{} { return c.overflow }

// Deliver queues payload without blocking. It reports false when the
// connection is closed or its queue is full.
func (c *Conn) Deliver(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == Closed {
		return false
	}
	select {
	case c.out <- payload:
		return true
	default:
		c.overflowOnce.Do(func() { close(c.overflow) })
		return false
	}
}

func (c *Conn) bind(userID int64) (bound int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Unauthenticated:
		c.state = Authenticated
		c.userID = userID
		return userID, true
	case Authenticated:
		return c.userID, c.userID == userID
	default:
		return 0, false
	}
}

// close marks the connection closed and closes the outbound queue once.
func (c *Conn) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return false
	}
	c.state = Closed
	close(c.out)
	return true
}
