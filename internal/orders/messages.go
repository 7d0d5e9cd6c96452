package orders

import (
	"fmt"
	"strings"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/shopspring/decimal"
)

const currency = "MAD"

type NoticeKind string

const (
	NoticeAccepted NoticeKind = "accepted"
	NoticeRejected NoticeKind = "rejected"
	NoticeOnTheWay NoticeKind = "on_the_way"
)

// Messages formats the texts sent to the store, customers and couriers.
type Messages struct {
	storePhone  string
	countryCode string
}

func NewMessages(storePhone, countryCode string) *Messages {
	m := &Messages{countryCode: countryCode}
	m.storePhone = m.NormalizePhone(storePhone)
	return m
}

func (m *Messages) StoreDestination() string {
	return m.storePhone
}

func (m *Messages) CustomerDestination(o *domain.Order) string {
	return m.NormalizePhone(o.Customer.Phone)
}

// NormalizePhone keeps digits only and replaces a local leading zero with
// the country code.
func (m *Messages) NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "00") {
		return digits[2:]
	}
	if strings.HasPrefix(digits, "0") && m.countryCode != "" {
		return m.countryCode + digits[1:]
	}
	return digits
}

// NewOrder is the summary the store receives for every placed order.
func (m *Messages) NewOrder(o *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order %s\n", o.ID)
	fmt.Fprintf(&b, "Name: %s\n", o.Customer.Name)
	fmt.Fprintf(&b, "Phone: %s\n", o.Customer.Phone)
	fmt.Fprintf(&b, "Address: %s\n", o.Customer.Address)
	fmt.Fprintf(&b, "Delivery: %s %s\n", formatDate(o), o.Delivery.Window)
	fmt.Fprintf(&b, "Payment: %s\n", o.PaymentMethod)
	b.WriteString("\nItems:\n")
	writeItems(&b, o.Items)
	fmt.Fprintf(&b, "\nSubtotal: %s\n", money(o.Subtotal))
	if o.Loyalty.GiftCardValue.IsPositive() {
		fmt.Fprintf(&b, "Gift card: -%s\n", money(o.Loyalty.GiftCardValue))
	}
	if o.Loyalty.CoinsUsed > 0 {
		fmt.Fprintf(&b, "Coins used: %d\n", o.Loyalty.CoinsUsed)
	}
	if o.Discount.IsPositive() {
		fmt.Fprintf(&b, "Discount: -%s\n", money(o.Discount))
	}
	fmt.Fprintf(&b, "Total: %s", money(o.Total))
	if paid := o.CoinsPaid(); paid > 0 {
		fmt.Fprintf(&b, "\nPaid with coins: %d", paid)
	}
	return b.String()
}

func (m *Messages) Customer(o *domain.Order, kind NoticeKind) string {
	switch kind {
	case NoticeAccepted:
		return fmt.Sprintf("Hello %s, your order %s has been accepted and is being prepared. Total: %s.",
			o.Customer.Name, shortID(o.ID), money(o.Total))
	case NoticeRejected:
		return fmt.Sprintf("Hello %s, unfortunately we could not accept your order %s. Any coins or gift card used will be returned.",
			o.Customer.Name, shortID(o.ID))
	case NoticeOnTheWay:
		return fmt.Sprintf("Hello %s, your order %s is on its way.",
			o.Customer.Name, shortID(o.ID))
	}
	return ""
}

func (m *Messages) Courier(o *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Delivery %s\n", shortID(o.ID))
	fmt.Fprintf(&b, "Customer: %s\n", o.Customer.Name)
	fmt.Fprintf(&b, "Phone: %s\n", m.NormalizePhone(o.Customer.Phone))
	fmt.Fprintf(&b, "Address: %s\n", o.Customer.Address)
	b.WriteString("\nItems:\n")
	writeItems(&b, o.Items)
	fmt.Fprintf(&b, "\nCollect: %s", money(o.AmountDue()))
	if paid := o.CoinsPaid(); paid > 0 {
		fmt.Fprintf(&b, " (paid with %d coins)", paid)
	}
	return b.String()
}

func writeItems(b *strings.Builder, items []domain.CartLineItem) {
	for i := range items {
		li := &items[i]
		fmt.Fprintf(b, "- %s (%d) - %s\n", li.Name, li.Quantity, money(li.LineTotal()))
		if len(li.SelectedOptions) > 0 {
			fmt.Fprintf(b, "  options: %s\n", strings.Join(li.SelectedOptions, ", "))
		}
		for _, e := range li.SelectedExtras {
			fmt.Fprintf(b, "  + %s\n", e.Name)
		}
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces) + " " + currency
}

func formatDate(o *domain.Order) string {
	if o.Delivery.Date.IsZero() {
		return "today"
	}
	return o.Delivery.Date.Format("2006-01-02")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
