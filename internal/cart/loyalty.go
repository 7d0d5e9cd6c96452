package cart

import (
	"context"
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SelectLoyalty records a previewed loyalty selection. Balances and cards
// are only checked, never touched.
func (s *Service) SelectLoyalty(ctx context.Context, sessionID, userID, giftCardID string, coinsToUse int64) (*domain.Session, error) {
	return s.mutate(ctx, sessionID, userID, func(session *domain.Session) error {
		if session.Loyalty.Confirmed {
			return domain.ErrSelectionLocked
		}
		sel, err := s.validateSelection(ctx, userID, giftCardID, coinsToUse)
		if err != nil {
			return err
		}
		session.Loyalty = sel
		return nil
	})
}

// ConfirmLoyalty revalidates the selection and locks it, together with the
// cart, for checkout.
func (s *Service) ConfirmLoyalty(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	return s.mutate(ctx, sessionID, userID, func(session *domain.Session) error {
		if session.Loyalty.Confirmed {
			return nil
		}
		if len(session.Items) == 0 {
			return domain.ErrEmptyCart
		}
		sel, err := s.validateSelection(ctx, userID, session.Loyalty.GiftCardID, session.Loyalty.CoinsToUse)
		if err != nil {
			return err
		}
		sel.Confirmed = true
		session.Loyalty = sel

		s.log.Info("loyalty selection confirmed",
			zap.String("session_id", session.ID),
			zap.String("gift_card_id", sel.GiftCardID),
			zap.Int64("coins", sel.CoinsToUse))
		return nil
	})
}

// ResetLoyalty drops the selection and unlocks the cart.
func (s *Service) ResetLoyalty(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	return s.mutate(ctx, sessionID, userID, func(session *domain.Session) error {
		session.Loyalty = domain.LoyaltySelection{}
		return nil
	})
}

func (s *Service) validateSelection(ctx context.Context, userID, giftCardID string, coinsToUse int64) (domain.LoyaltySelection, error) {
	sel := domain.LoyaltySelection{CoinsToUse: coinsToUse, GiftCardValue: decimal.Zero}

	if giftCardID != "" {
		gc, err := s.giftCards.UsableGiftCard(ctx, userID, giftCardID)
		if err != nil {
			return domain.LoyaltySelection{}, err
		}
		sel.GiftCardID = gc.ID
		sel.GiftCardValue = gc.MonetaryValue
	}

	var balance int64
	if coinsToUse != 0 {
		var err error
		if balance, err = s.balances.Balance(ctx, userID); err != nil {
			return domain.LoyaltySelection{}, fmt.Errorf("get coin balance: %w", err)
		}
	}
	err := pricing.ValidateSelection(pricing.Selection{GiftCardValue: sel.GiftCardValue, CoinsToUse: coinsToUse}, balance)
	if err != nil {
		return domain.LoyaltySelection{}, err
	}
	return sel, nil
}
