package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type CartLineItem struct {
	LineID          string          `json:"line_id"`
	ProductID       string          `json:"product_id"`
	Name            string          `json:"name"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	UnitCoinPrice   int64           `json:"unit_coin_price"`
	Quantity        int             `json:"quantity"`
	SelectedOptions []string        `json:"selected_options,omitempty"`
	SelectedExtras  []ProductExtra  `json:"selected_extras,omitempty"`
}

// ExtrasPrice is the sum of the selected extra prices for one unit.
func (li *CartLineItem) ExtrasPrice() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range li.SelectedExtras {
		sum = sum.Add(e.Price)
	}
	return sum
}

// LineTotal is (unit price + extras) * quantity.
func (li *CartLineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Add(li.ExtrasPrice()).Mul(decimal.NewFromInt(int64(li.Quantity)))
}

func (li *CartLineItem) LineCoinTotal() int64 {
	return li.UnitCoinPrice * int64(li.Quantity)
}

// Normalize turns the option and extra lists into sorted sets.
func (li *CartLineItem) Normalize() {
	if len(li.SelectedOptions) > 0 {
		seen := make(map[string]struct{}, len(li.SelectedOptions))
		opts := make([]string, 0, len(li.SelectedOptions))
		for _, o := range li.SelectedOptions {
			if _, ok := seen[o]; ok {
				continue
			}
			seen[o] = struct{}{}
			opts = append(opts, o)
		}
		sort.Strings(opts)
		li.SelectedOptions = opts
	}
	if len(li.SelectedExtras) > 0 {
		seen := make(map[string]struct{}, len(li.SelectedExtras))
		extras := make([]ProductExtra, 0, len(li.SelectedExtras))
		for _, e := range li.SelectedExtras {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			extras = append(extras, e)
		}
		sort.Slice(extras, func(i, j int) bool { return extras[i].ID < extras[j].ID })
		li.SelectedExtras = extras
	}
}

// MergeKey identifies lines that collapse into one when added to a cart.
// Callers normalize the line first.
func (li *CartLineItem) MergeKey() string {
	var b strings.Builder
	b.WriteString(li.ProductID)
	b.WriteString("|")
	b.WriteString(strings.Join(li.SelectedOptions, ","))
	b.WriteString("|")
	for i, e := range li.SelectedExtras {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(e.ID)
	}
	return b.String()
}

// CloneLineItems deep-copies items so the copy shares no slices with the source.
func CloneLineItems(items []CartLineItem) []CartLineItem {
	if items == nil {
		return nil
	}
	out := make([]CartLineItem, len(items))
	for i, li := range items {
		out[i] = li
		if li.SelectedOptions != nil {
			out[i].SelectedOptions = append([]string(nil), li.SelectedOptions...)
		}
		if li.SelectedExtras != nil {
			out[i].SelectedExtras = append([]ProductExtra(nil), li.SelectedExtras...)
		}
	}
	return out
}

// ItemCount is the total quantity across lines.
func ItemCount(items []CartLineItem) int {
	n := 0
	for _, li := range items {
		n += li.Quantity
	}
	return n
}
