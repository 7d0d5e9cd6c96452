package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient coin balance")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrEmptyCart             = errors.New("cart is empty, nothing to order")
	ErrMissingDeliverySlot   = errors.New("delivery window is not selected")
	ErrInvalidCode           = errors.New("invalid code")
	ErrNotFound              = errors.New("not found")
	ErrUnauthenticated       = errors.New("user is not authenticated")
	ErrExpiredInstrument     = errors.New("loyalty instrument is expired or already redeemed")
	ErrSelectionLocked       = errors.New("loyalty selection is confirmed and locked")
	ErrSelectionNotConfirmed = errors.New("loyalty selection must be confirmed before checkout")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidCustomer       = errors.New("customer name, phone and address are required")
	ErrForbidden             = errors.New("forbidden")
)

// InvalidTransitionError reports the rejected edge of the status graph.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
