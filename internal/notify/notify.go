package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelInfo    = "info"
)

// maxPerSession bounds the backlog for a dashboard nobody is draining.
const maxPerSession = 50

type Notification struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Center queues transient per-session notifications, the server-side
// stand-in for the dashboard's toasts. The frontend drains them on its
// regular refresh cycle.
type Center struct {
	mu      sync.Mutex
	pending map[string][]Notification
}

func NewCenter() *Center {
	return &Center{pending: map[string][]Notification{}}
}

func (c *Center) Push(sessionID, level, message string) {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	queue := append(c.pending[sessionID], n)
	if len(queue) > maxPerSession {
		queue = queue[len(queue)-maxPerSession:]
	}
	c.pending[sessionID] = queue
}

// Drain returns and clears everything pending for the session.
func (c *Center) Drain(sessionID string) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.pending[sessionID]
	delete(c.pending, sessionID)
	return queue
}

// Forget drops a session's queue without delivering it. Called on
// logout.
func (c *Center) Forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, sessionID)
}
