package http

import (
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces)
}

type lineItemDTO struct {
	LineID        string   `json:"line_id"`
	ProductID     string   `json:"product_id"`
	Name          string   `json:"name"`
	UnitPrice     string   `json:"unit_price"`
	UnitCoinPrice int64    `json:"unit_coin_price"`
	Quantity      int      `json:"quantity"`
	Options       []string `json:"options,omitempty"`
	Extras        []string `json:"extras,omitempty"`
	LineTotal     string   `json:"line_total"`
	LineCoinTotal int64    `json:"line_coin_total"`
}

func toLineItems(items []domain.CartLineItem) []lineItemDTO {
	out := make([]lineItemDTO, 0, len(items))
	for i := range items {
		li := &items[i]
		dto := lineItemDTO{
			LineID:        li.LineID,
			ProductID:     li.ProductID,
			Name:          li.Name,
			UnitPrice:     money(li.UnitPrice),
			UnitCoinPrice: li.UnitCoinPrice,
			Quantity:      li.Quantity,
			Options:       li.SelectedOptions,
			LineTotal:     money(li.LineTotal()),
			LineCoinTotal: li.LineCoinTotal(),
		}
		for _, e := range li.SelectedExtras {
			dto.Extras = append(dto.Extras, e.ID)
		}
		out = append(out, dto)
	}
	return out
}

type pricingDTO struct {
	Subtotal     string `json:"subtotal"`
	Discount     string `json:"discount"`
	Total        string `json:"total"`
	CoinSubtotal int64  `json:"coin_subtotal"`
	ItemCount    int    `json:"item_count"`
}

func toPricing(b pricing.Breakdown) pricingDTO {
	return pricingDTO{
		Subtotal:     money(b.Subtotal),
		Discount:     money(b.Discount),
		Total:        money(b.Total),
		CoinSubtotal: b.CoinSubtotal,
		ItemCount:    b.ItemCount,
	}
}

type loyaltyDTO struct {
	GiftCardID    string `json:"gift_card_id,omitempty"`
	GiftCardValue string `json:"gift_card_value"`
	CoinsToUse    int64  `json:"coins_to_use"`
	Confirmed     bool   `json:"confirmed"`
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Items     []lineItemDTO `json:"items"`
	Loyalty   loyaltyDTO    `json:"loyalty"`
	Pricing   pricingDTO    `json:"pricing"`
}

func toSessionResponse(s *domain.Session, b pricing.Breakdown) sessionResponse {
	return sessionResponse{
		SessionID: s.ID,
		Items:     toLineItems(s.Items),
		Loyalty: loyaltyDTO{
			GiftCardID:    s.Loyalty.GiftCardID,
			GiftCardValue: money(s.Loyalty.GiftCardValue),
			CoinsToUse:    s.Loyalty.CoinsToUse,
			Confirmed:     s.Loyalty.Confirmed,
		},
		Pricing: toPricing(b),
	}
}

type customerDTO struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type orderResponse struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Status          string        `json:"status"`
	NextStatuses    []string      `json:"next_statuses"`
	Items           []lineItemDTO `json:"items"`
	Subtotal        string        `json:"subtotal"`
	Discount        string        `json:"discount"`
	Total           string        `json:"total"`
	CoinSubtotal    int64         `json:"coin_subtotal"`
	GiftCardID      string        `json:"gift_card_id,omitempty"`
	GiftCardValue   string        `json:"gift_card_value"`
	CoinsUsed       int64         `json:"coins_used"`
	DeliveryDate    string        `json:"delivery_date,omitempty"`
	DeliveryWindow  string        `json:"delivery_window"`
	PaymentMethod   string        `json:"payment_method"`
	Customer        customerDTO   `json:"customer"`
	CreatedAt       time.Time     `json:"created_at"`
	StatusUpdatedAt time.Time     `json:"status_updated_at"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status.String(),
		NextStatuses:    []string{},
		Items:           toLineItems(o.Items),
		Subtotal:        money(o.Subtotal),
		Discount:        money(o.Discount),
		Total:           money(o.Total),
		CoinSubtotal:    o.CoinSubtotal,
		GiftCardID:      o.Loyalty.GiftCardID,
		GiftCardValue:   money(o.Loyalty.GiftCardValue),
		CoinsUsed:       o.Loyalty.CoinsUsed,
		DeliveryWindow:  o.Delivery.Window,
		PaymentMethod:   string(o.PaymentMethod),
		Customer:        customerDTO(o.Customer),
		CreatedAt:       o.CreatedAt,
		StatusUpdatedAt: o.StatusUpdatedAt,
	}
	if !o.Delivery.Date.IsZero() {
		resp.DeliveryDate = o.Delivery.Date.Format(time.DateOnly)
	}
	for _, s := range o.Status.NextStatuses() {
		resp.NextStatuses = append(resp.NextStatuses, s.String())
	}
	return resp
}

func toOrderList(list []*domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type rewardStageDTO struct {
	RequiredStamps int    `json:"required_stamps"`
	Description    string `json:"reward_description"`
}

type instrumentResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	CardNumber string    `json:"card_number"`
	DateAdded  time.Time `json:"date_added"`

	CurrentStamps *int             `json:"current_stamps,omitempty"`
	StampCapacity *int             `json:"stamp_capacity,omitempty"`
	RewardStages  []rewardStageDTO `json:"reward_stages,omitempty"`
	NextReward    *rewardStageDTO  `json:"next_reward,omitempty"`

	MonetaryValue string `json:"monetary_value,omitempty"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
	Redeemed      *bool  `json:"redeemed,omitempty"`
}

// toInstrumentResponse masks the card number; only its owner ever sees the
// last four digits.
func toInstrumentResponse(inst domain.Instrument) instrumentResponse {
	base := inst.Base()
	resp := instrumentResponse{
		ID:         base.ID,
		Kind:       string(inst.Kind()),
		CardNumber: domain.MaskCardNumber(base.CardNumber),
		DateAdded:  base.DateAdded,
	}
	switch v := inst.(type) {
	case *domain.StampCard:
		current, capacity := v.CurrentStamps, v.StampCapacity
		resp.CurrentStamps = &current
		resp.StampCapacity = &capacity
		for _, s := range v.RewardStages {
			resp.RewardStages = append(resp.RewardStages, rewardStageDTO(s))
		}
		if next, ok := v.NextStage(); ok {
			dto := rewardStageDTO(next)
			resp.NextReward = &dto
		}
	case *domain.GiftCard:
		redeemed := v.Redeemed
		resp.MonetaryValue = money(v.MonetaryValue)
		resp.ExpiryDate = v.ExpiryDate.Format(time.DateOnly)
		resp.Redeemed = &redeemed
	}
	return resp
}

type coinTransactionDTO struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCoinTransactions(list []domain.CoinTransaction) []coinTransactionDTO {
	out := make([]coinTransactionDTO, 0, len(list))
	for _, tx := range list {
		out = append(out, coinTransactionDTO{
			ID:          tx.ID,
			Type:        string(tx.Type),
			Amount:      tx.Amount,
			Description: tx.Description,
			ReferenceID: tx.ReferenceID,
			CreatedAt:   tx.CreatedAt,
		})
	}
	return out
}
