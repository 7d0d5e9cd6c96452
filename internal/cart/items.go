package cart

import (
	"context"
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/google/uuid"
)

type AddItemRequest struct {
	ProductID string
	Quantity  int
	Options   []string
	ExtraIDs  []string
}

// AddItem prices the line from the catalog and merges it into an existing
// line with the same product, options and extras.
func (s *Service) AddItem(ctx context.Context, sessionID, userID string, req AddItemRequest) (*domain.Session, error) {
	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity %d: %w", req.Quantity, domain.ErrInvalidAmount)
	}

	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", req.ProductID, err)
	}

	line := domain.CartLineItem{
		ProductID:     product.ID,
		Name:          product.Name,
		UnitPrice:     product.UnitPrice(),
		UnitCoinPrice: product.CoinPrice,
		Quantity:      req.Quantity,
	}
	for _, o := range req.Options {
		if !product.HasOption(o) {
			return nil, fmt.Errorf("option %q of %s: %w", o, product.ID, domain.ErrNotFound)
		}
		line.SelectedOptions = append(line.SelectedOptions, o)
	}
	for _, id := range req.ExtraIDs {
		extra, ok := product.Extra(id)
		if !ok {
			return nil, fmt.Errorf("extra %q of %s: %w", id, product.ID, domain.ErrNotFound)
		}
		line.SelectedExtras = append(line.SelectedExtras, extra)
	}
	line.Normalize()

	return s.mutate(ctx, sessionID, userID, func(session *domain.Session) error {
		if session.Loyalty.Confirmed {
			return domain.ErrSelectionLocked
		}
		key := line.MergeKey()
		for i := range session.Items {
			if session.Items[i].MergeKey() == key {
				session.Items[i].Quantity += line.Quantity
				return nil
			}
		}
		line.LineID = uuid.NewString()
		session.Items = append(session.Items, line)
		return nil
	})
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, sessionID, userID, lineID string, quantity int) (*domain.Session, error) {
	return s.mutate(ctx, sessionID, userID, func(session *domain.Session) error {
		if session.Loyalty.Confirmed {
			return domain.ErrSelectionLocked
		}
		i := findLine(session.Items, lineID)
		if i < 0 {
			return fmt.Errorf("line %s: %w", lineID, domain.ErrNotFound)
		}
		if quantity <= 0 {
			session.Items = append(session.Items[:i], session.Items[i+1:]...)
			return nil
		}
		session.Items[i].Quantity = quantity
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, sessionID, userID, lineID string) (*domain.Session, error) {
	return s.UpdateQuantity(ctx, sessionID, userID, lineID, 0)
}

// Clear empties the cart and drops an unconfirmed loyalty selection.
func (s *Service) Clear(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	return s.mutate(ctx, sessionID, userID, func(session *domain.Session) error {
		if session.Loyalty.Confirmed {
			return domain.ErrSelectionLocked
		}
		session.Items = nil
		session.Loyalty = domain.LoyaltySelection{}
		return nil
	})
}

func findLine(items []domain.CartLineItem, lineID string) int {
	for i := range items {
		if items[i].LineID == lineID {
			return i
		}
	}
	return -1
}
