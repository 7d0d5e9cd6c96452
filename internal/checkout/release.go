package checkout

import (
	"context"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/pkg/logger"
	"go.uber.org/zap"
)

// OrderStatusChanged gives back the coins and the gift card of an order the
// store rejected.
func (s *Service) OrderStatusChanged(ctx context.Context, order *domain.Order, _ domain.OrderStatus) {
	if order.Status != domain.OrderStatusRejected {
		return
	}
	log := logger.WithTrace(ctx, s.log).With(zap.String("order_id", order.ID))

	if spent := order.Loyalty.CoinsUsed + order.CoinsPaid(); spent > 0 {
		if err := s.coins.Refund(ctx, order.UserID, spent, order.ID); err != nil {
			log.Error("refund coins of rejected order", zap.Int64("coins", spent), zap.Error(err))
		}
	}
	if order.Loyalty.GiftCardID != "" {
		if err := s.giftCards.RestoreGiftCard(ctx, order.Loyalty.GiftCardID); err != nil {
			log.Error("restore gift card of rejected order", zap.String("card_id", order.Loyalty.GiftCardID), zap.Error(err))
		}
	}
	log.Info("loyalty released for rejected order")
}
