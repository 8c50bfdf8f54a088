// Package notify delivers fire-and-forget order notifications.  Failures
// never propagate into the confirmation path.
package notify

import (
    "log"
    "strings"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// LogNotifier writes one structured line per confirmed order to the
// process log.  It stands in for the email/notification collaborator in
// environments where none is wired.
type LogNotifier struct{}

// OrderConfirmed logs the order summary.
func (LogNotifier) OrderConfirmed(order model.Order, items []model.OrderItem) {
    for _, it := range items {
        seats := "[]"
        if len(it.SeatLabels) > 0 {
            seats = "[" + strings.Join(it.SeatLabels, ",") + "]"
        }
        log.Printf("order-confirmed: order=%d holder=%s ticket=%d qty=%d total=%d cents seats=%s",
            order.ID, order.HolderID, it.TicketID, it.Quantity, order.TotalAmountCents, seats)
    }
}
