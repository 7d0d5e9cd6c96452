package pricing

import (
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultCoinRate is the monetary value of one coin.
var DefaultCoinRate = decimal.RequireFromString("0.1")

// Selection is the loyalty input to a price computation.
type Selection struct {
	GiftCardValue decimal.Decimal
	CoinsToUse    int64
}

type Breakdown struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	CoinSubtotal int64           `json:"coin_subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
	ItemCount    int             `json:"item_count"`
}

// Engine prices cart line items. It holds no state besides the coin rate
// and is safe for concurrent use.
type Engine struct {
	coinRate decimal.Decimal
}

func NewEngine(coinRate decimal.Decimal) *Engine {
	if !coinRate.IsPositive() {
		coinRate = DefaultCoinRate
	}
	return &Engine{coinRate: coinRate}
}

func (e *Engine) CoinRate() decimal.Decimal {
	return e.coinRate
}

func (e *Engine) Subtotal(items []domain.CartLineItem) decimal.Decimal {
	sum := decimal.Zero
	for i := range items {
		sum = sum.Add(items[i].LineTotal())
	}
	return domain.RoundMoney(sum)
}

// CoinEquivalentSubtotal is informational and never enters discount math.
func (e *Engine) CoinEquivalentSubtotal(items []domain.CartLineItem) int64 {
	var sum int64
	for i := range items {
		sum += items[i].LineCoinTotal()
	}
	return sum
}

// CoinValue converts coins to money at the engine rate.
func (e *Engine) CoinValue(coins int64) decimal.Decimal {
	return domain.RoundMoney(decimal.NewFromInt(coins).Mul(e.coinRate))
}

// Discount is min(gift card value + coin value, subtotal).
func (e *Engine) Discount(items []domain.CartLineItem, sel Selection) decimal.Decimal {
	subtotal := e.Subtotal(items)
	d := domain.RoundMoney(sel.GiftCardValue.Add(e.CoinValue(sel.CoinsToUse)))
	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, subtotal)
}

// Total is max(subtotal - discount, 0).
func (e *Engine) Total(items []domain.CartLineItem, sel Selection) decimal.Decimal {
	t := e.Subtotal(items).Sub(e.Discount(items, sel))
	return decimal.Max(t, decimal.Zero)
}

// Price computes the full breakdown without validating the selection
// against a balance. Use it for selections that were already validated.
func (e *Engine) Price(items []domain.CartLineItem, sel Selection) Breakdown {
	return Breakdown{
		Subtotal:     e.Subtotal(items),
		CoinSubtotal: e.CoinEquivalentSubtotal(items),
		Discount:     e.Discount(items, sel),
		Total:        e.Total(items, sel),
		ItemCount:    domain.ItemCount(items),
	}
}

// Quote validates the selection against the user's coin balance and prices
// the cart. Coins above the balance are rejected, never clamped.
func (e *Engine) Quote(items []domain.CartLineItem, sel Selection, coinBalance int64) (Breakdown, error) {
	if err := ValidateSelection(sel, coinBalance); err != nil {
		return Breakdown{}, err
	}
	return e.Price(items, sel), nil
}

func ValidateSelection(sel Selection, coinBalance int64) error {
	if sel.CoinsToUse < 0 {
		return fmt.Errorf("coins to use %d: %w", sel.CoinsToUse, domain.ErrInvalidAmount)
	}
	if sel.GiftCardValue.IsNegative() {
		return fmt.Errorf("gift card value %s: %w", sel.GiftCardValue, domain.ErrInvalidAmount)
	}
	if sel.CoinsToUse > coinBalance {
		return fmt.Errorf("requested %d coins with balance %d: %w", sel.CoinsToUse, coinBalance, domain.ErrInsufficientBalance)
	}
	return nil
}
