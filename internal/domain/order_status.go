package domain

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPreparing  OrderStatus = "preparing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusRejected   OrderStatus = "rejected"
)

// allowedTransitions is the whole status graph. Terminal states have no entry.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:        {OrderStatusProcessing, OrderStatusRejected},
	OrderStatusProcessing: {OrderStatusPreparing, OrderStatusRejected},
	OrderStatusPreparing:  {OrderStatusDelivering, OrderStatusRejected},
	OrderStatusDelivering: {OrderStatusCompleted},
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusNew, OrderStatusProcessing, OrderStatusPreparing,
		OrderStatusDelivering, OrderStatusCompleted, OrderStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether target is directly reachable from s.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// NextStatuses returns a copy of the statuses reachable from s.
func (s OrderStatus) NextStatuses() []OrderStatus {
	next := allowedTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// ParseOrderStatus accepts the canonical names and "pending" as an alias of new.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	v := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if v == "pending" {
		return OrderStatusNew, nil
	}
	if !v.IsValid() {
		return "", fmt.Errorf("unknown order status %q: %w", raw, ErrInvalidTransition)
	}
	return v, nil
}
