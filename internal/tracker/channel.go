package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
)

var ErrWrongOrigin = errors.New("tracker: order origin not served by this channel")

// Update is one observed status of an order. Channels may redeliver the
// same status.
type Update struct {
	OrderID order.ID
	Status  order.Status
	At      time.Time
}

// Channel is a source of status updates for orders of one origin.
type Channel interface {
	// Subscribe streams updates for id until cancel is called.
	Subscribe(id order.ID) (updates <-chan Update, cancel func(), err error)
	// Fetch re-reads the current status.
	Fetch(ctx context.Context, id order.ID) (order.Status, error)
}

const subscriberBuffer = 4
