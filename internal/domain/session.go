package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoyaltySelection is the loyalty choice of one checkout flow. Once
// Confirmed, it and the cart it prices are locked.
type LoyaltySelection struct {
	GiftCardID    string          `json:"gift_card_id,omitempty"`
	GiftCardValue decimal.Decimal `json:"gift_card_value"`
	CoinsToUse    int64           `json:"coins_to_use"`
	Confirmed     bool            `json:"confirmed"`
}

func (l LoyaltySelection) IsEmpty() bool {
	return l.GiftCardID == "" && l.CoinsToUse == 0
}

// Session is the owned state of one shopping session: the cart and the
// loyalty selection. It starts empty and is cleared on checkout or logout.
type Session struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Items     []CartLineItem   `json:"items"`
	Loyalty   LoyaltySelection `json:"loyalty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (s *Session) Clone() *Session {
	c := *s
	c.Items = CloneLineItems(s.Items)
	return &c
}

func (s *Session) ItemCount() int {
	return ItemCount(s.Items)
}
