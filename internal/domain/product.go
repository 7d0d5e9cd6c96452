package domain

import "github.com/shopspring/decimal"

type ProductExtra struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	CoinPrice     int64           `json:"coin_price"`
	Options       []string        `json:"options"`
	Extras        []ProductExtra  `json:"extras"`
	IsFlashDeal   bool            `json:"is_flash_deal"`
	IsBestSeller  bool            `json:"is_best_seller"`
}

// UnitPrice is the price charged per unit: the discount price when one is set.
func (p *Product) UnitPrice() decimal.Decimal {
	if p.DiscountPrice.IsPositive() {
		return p.DiscountPrice
	}
	return p.Price
}

func (p *Product) HasOption(name string) bool {
	for _, o := range p.Options {
		if o == name {
			return true
		}
	}
	return false
}

func (p *Product) Extra(id string) (ProductExtra, bool) {
	for _, e := range p.Extras {
		if e.ID == id {
			return e, true
		}
	}
	return ProductExtra{}, false
}
