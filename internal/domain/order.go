package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCoins PaymentMethod = "coins"
)

func (p PaymentMethod) IsValid() bool {
	return p == PaymentMethodCash || p == PaymentMethodCoins
}

type DeliverySelection struct {
	Date   time.Time `json:"delivery_date"`
	Window string    `json:"delivery_window"`
}

type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (c CustomerInfo) IsComplete() bool {
	return strings.TrimSpace(c.Name) != "" &&
		strings.TrimSpace(c.Phone) != "" &&
		strings.TrimSpace(c.Address) != ""
}

// AppliedLoyalty records what was spent on an order.
type AppliedLoyalty struct {
	GiftCardID    string          `json:"gift_card_id,omitempty"`
	GiftCardValue decimal.Decimal `json:"gift_card_value"`
	CoinsUsed     int64           `json:"coins_used"`
}

// Order is immutable after creation except for Status and StatusUpdatedAt.
type Order struct {
	ID              string
	UserID          string
	Items           []CartLineItem
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	CoinSubtotal    int64
	Loyalty         AppliedLoyalty
	Status          OrderStatus
	Delivery        DeliverySelection
	PaymentMethod   PaymentMethod
	Customer        CustomerInfo
	CreatedAt       time.Time
	StatusUpdatedAt time.Time
}

// CoinsPaid is the coin price debited when the order is paid with coins.
func (o *Order) CoinsPaid() int64 {
	if o.PaymentMethod != PaymentMethodCoins {
		return 0
	}
	return o.CoinSubtotal
}

// AmountDue is what the courier collects on delivery.
func (o *Order) AmountDue() decimal.Decimal {
	if o.PaymentMethod == PaymentMethodCoins {
		return decimal.Zero
	}
	return o.Total
}

// Clone deep-copies the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = CloneLineItems(o.Items)
	return &c
}
