package domain

type SubOrderStatus string

const (
	SubOrderReceived       SubOrderStatus = "order_received"
	SubOrderPreparing      SubOrderStatus = "preparing"
	SubOrderReady          SubOrderStatus = "ready"
	SubOrderPickedUp       SubOrderStatus = "picked_up"
	SubOrderOutForDelivery SubOrderStatus = "out_for_delivery"
	SubOrderDelivered      SubOrderStatus = "delivered"
	SubOrderCompleted      SubOrderStatus = "completed"
	SubOrderCancelled      SubOrderStatus = "cancelled"
)

type OrderStatus string

const (
	OrderPending            OrderStatus = "pending"
	OrderInProgress         OrderStatus = "in_progress"
	OrderCompleted          OrderStatus = "completed"
	OrderCancelled          OrderStatus = "cancelled"
	OrderPartiallyFulfilled OrderStatus = "partially_fulfilled"
)

// transitions is the authoritative sub-order state machine. Cancellation is
// only possible before food is ready.
var transitions = map[SubOrderStatus][]SubOrderStatus{
	SubOrderReceived:       {SubOrderPreparing, SubOrderCancelled},
	SubOrderPreparing:      {SubOrderReady, SubOrderCancelled},
	SubOrderReady:          {SubOrderPickedUp, SubOrderOutForDelivery},
	SubOrderPickedUp:       {SubOrderDelivered, SubOrderCompleted},
	SubOrderOutForDelivery: {SubOrderDelivered},
	SubOrderDelivered:      {SubOrderCompleted},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to SubOrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s SubOrderStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// DeriveOverallStatus folds the sub-order statuses into the parent order's
// status. It never needs to be stored independently of the sub-orders.
func DeriveOverallStatus(subs []SubOrder) OrderStatus {
	if len(subs) == 0 {
		return OrderPending
	}

	var completed, cancelled, received int
	for _, s := range subs {
		switch s.Status {
		case SubOrderCompleted:
			completed++
		case SubOrderCancelled:
			cancelled++
		case SubOrderReceived:
			received++
		}
	}

	total := len(subs)
	switch {
	case cancelled == total:
		return OrderCancelled
	case completed == total:
		return OrderCompleted
	case completed+cancelled == total:
		return OrderPartiallyFulfilled
	case received == total:
		return OrderPending
	default:
		return OrderInProgress
	}
}
