package order

import (
	"github.com/cryptoport/bridge/internal/schema"
)

// ApplyOverride projects an order as if the exchange had reported the forced
// status. The returned order is a detached copy for display and debugging;
// the input order, the poller's state, and the store are never touched, and
// no network or persistence side effects run.
func ApplyOverride(order *schema.Order, forced schema.OrderStatus) *schema.Order {
	if order == nil {
		return nil
	}
	projected := order.Clone()
	projected.CurrentStatus = forced

	if order.LastSnapshot != nil {
		snapshot := *order.LastSnapshot
		snapshot.Status = forced.Remote()
		projected.LastSnapshot = &snapshot
	} else {
		projected.LastSnapshot = &schema.RemoteSnapshot{Status: forced.Remote()}
	}
	return projected
}
