package tracker

import (
	"fmt"
	"math"
	"time"

	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
)

type stage struct {
	progress int
	title    string
	eta      string
}

var stages = map[order.Status]stage{
	order.StatusPending:   {progress: 10, title: "Order received", eta: "Waiting for confirmation"},
	order.StatusConfirmed: {progress: 25, title: "Order confirmed", eta: "Order confirmed, preparing soon"},
	order.StatusPreparing: {progress: 50, title: "Preparing your order", eta: "Your order is being prepared"},
	order.StatusReady:     {progress: 85, title: "Order ready", eta: "Your order is ready!"},
	order.StatusCompleted: {progress: 100, title: "Order completed", eta: "Order completed"},
	order.StatusCancelled: {progress: 0, title: "Order cancelled", eta: "Order cancelled"},
}

func stageOf(s order.Status) stage {
	st, ok := stages[s]
	if !ok {
		return stages[order.StatusPending]
	}
	return st
}

// Progress is the percentage shown for an authoritative status.
func Progress(s order.Status) int {
	return stageOf(s).progress
}

func ETALabel(s order.Status) string {
	return stageOf(s).eta
}

// Title labels notifications about s.
func Title(s order.Status) string {
	return stageOf(s).title
}

// ElapsedProgress interpolates linearly between placement and estimated
// ready time, clamped to [0,100].
func ElapsedProgress(placed, ready, now time.Time) int {
	total := ready.Sub(placed)
	if total <= 0 {
		return 100
	}
	p := float64(now.Sub(placed)) / float64(total) * 100
	return int(math.Max(0, math.Min(100, math.Floor(p))))
}

// RemainingLabel renders the time left until ready for orders without an
// authoritative status.
func RemainingLabel(ready, now time.Time) string {
	left := ready.Sub(now)
	if left <= 0 {
		return "Should be ready any moment"
	}
	minutes := int(math.Ceil(left.Minutes()))
	if minutes == 1 {
		return "About 1 minute remaining"
	}
	return fmt.Sprintf("About %d minutes remaining", minutes)
}
