package editor

import (
	"sync"
	"time"
)

// Notification is one transient user-visible message.
type Notification struct {
	ID      int
	Level   string // "success", "info", "error"
	Message string
}

// NotifyEvent is a notification being shown or expiring.
type NotifyEvent struct {
	Notification
	Cleared bool
}

// Center fans notifications out to SSE subscribers and expires each one
// after a fixed delay, so messages in the browser are time-boxed the same
// way for every open editor. It implements editor.Notifier.
type Center struct {
	mu   sync.Mutex
	ttl  time.Duration
	seq  int
	subs map[chan NotifyEvent]struct{}
}

// NewCenter creates a notification center. Notifications expire after ttl.
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &Center{ttl: ttl, subs: make(map[chan NotifyEvent]struct{})}
}

// Notify publishes a notification and schedules its expiry.
func (c *Center) Notify(level, message string) {
	c.mu.Lock()
	c.seq++
	n := Notification{ID: c.seq, Level: level, Message: message}
	c.mu.Unlock()

	c.publish(NotifyEvent{Notification: n})
	time.AfterFunc(c.ttl, func() {
		c.publish(NotifyEvent{Notification: n, Cleared: true})
	})
}

func (c *Center) publish(e NotifyEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives notify events.
func (c *Center) Subscribe() chan NotifyEvent {
	ch := make(chan NotifyEvent, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Center) Unsubscribe(ch chan NotifyEvent) {
	c.mu.Lock()
	delete(c.subs, ch)
	c.mu.Unlock()
	close(ch)
}
