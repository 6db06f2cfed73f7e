package order

import "errors"

var (
	ErrStatusAlreadySet        = errors.New("status is already set to the desired value")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// allowedTransitions lets the kitchen move an order forward, skipping steps
// if needed, and cancel it until it is terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusPreparing: true,
		StatusReady:     true,
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusPreparing: true,
		StatusReady:     true,
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusPreparing: {
		StatusReady:     true,
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusReady: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CheckTransition validates moving an order from current to next.
func CheckTransition(current, next Status) error {
	if current == next {
		return ErrStatusAlreadySet
	}
	if !allowedTransitions[current][next] {
		return ErrInvalidStatusTransition
	}
	return nil
}
