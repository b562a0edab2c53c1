package domain

// OrderStatus is shared by orders and order items.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderProcessing      OrderStatus = "processing"
	OrderShipped         OrderStatus = "shipped"
	OrderDelivered       OrderStatus = "delivered"
	OrderCancelled       OrderStatus = "cancelled"
	OrderReturnRequested OrderStatus = "return_requested"
)

// itemTransitions is the single allowed-transition table for order items.
var itemTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:         {OrderProcessing, OrderCancelled},
	OrderProcessing:      {OrderShipped, OrderCancelled},
	OrderShipped:         {OrderDelivered, OrderCancelled},
	OrderDelivered:       {OrderReturnRequested, OrderCancelled},
	OrderReturnRequested: {OrderCancelled},
	OrderCancelled:       nil,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.Valid() {
		return "", Validationf("unknown order status %q", s)
	}
	return st, nil
}

func (s OrderStatus) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the lifecycle of a single payment intent.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// failed -> pending is only taken when the buyer retries through a new
// intent attempt; gateway events never move a payment backwards.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentSucceeded, PaymentFailed},
	PaymentSucceeded: {PaymentRefunded},
	PaymentFailed:    {PaymentPending},
	PaymentRefunded:  nil,
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func CheckPaymentTransition(from, to PaymentStatus) error {
	if from == to {
		return nil
	}
	if !from.CanTransitionTo(to) {
		return Consistencyf("payment transition %s -> %s not allowed", from, to)
	}
	return nil
}

func CheckItemTransition(from, to OrderStatus) error {
	if from == to {
		return nil
	}
	if !from.CanTransitionTo(to) {
		return Consistencyf("order item transition %s -> %s not allowed", from, to)
	}
	return nil
}

func (s OrderStatus) String() string { return string(s) }

func (s PaymentStatus) String() string { return string(s) }
