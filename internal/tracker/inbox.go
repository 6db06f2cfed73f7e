package tracker

import (
	"sync"
	"time"

	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
)

type Notification struct {
	OrderID order.ID     `json:"order_id"`
	Status  order.Status `json:"status"`
	Title   string       `json:"title"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

type Notifier interface {
	Notify(n Notification)
}

// Inbox queues notifications until the UI drains them. When full the oldest
// entry is dropped.
type Inbox struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

func NewInbox(limit int) *Inbox {
	if limit < 1 {
		limit = 1
	}
	return &Inbox{limit: limit}
}

func (i *Inbox) Notify(n Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.items = append(i.items, n)
	if over := len(i.items) - i.limit; over > 0 {
		i.items = i.items[over:]
	}
}

// Drain returns queued notifications oldest first and empties the inbox.
func (i *Inbox) Drain() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := i.items
	i.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}
