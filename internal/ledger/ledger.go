package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/pkg/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns the stamp cards and gift cards of each user.
type Service struct {
	store Store
	clock clock.Clock
	log   *zap.Logger
}

func NewService(store Store, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{store: store, clock: clk, log: log}
}

func (s *Service) Cards(ctx context.Context, userID string) ([]domain.Instrument, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	cards, err := s.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards of %s: %w", userID, err)
	}
	return cards, nil
}

// Card returns an instrument owned by userID. Instruments owned by other
// users are reported as not found.
func (s *Service) Card(ctx context.Context, userID, cardID string) (domain.Instrument, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	inst, err := s.store.Get(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", cardID, err)
	}
	if inst.Base().OwnerID != userID {
		return nil, fmt.Errorf("card %s: %w", cardID, domain.ErrNotFound)
	}
	return inst, nil
}

// Claim attaches an issued card to userID. Claiming an own card again is a no-op.
func (s *Service) Claim(ctx context.Context, userID, cardNumber string) (domain.Instrument, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	_, number, err := VerifyCardNumber(cardNumber)
	if err != nil {
		return nil, err
	}

	inst, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("card %s: %w", domain.MaskCardNumber(number), err)
	}
	if inst.Base().OwnerID == userID {
		return inst, nil
	}

	claimed, err := s.store.Claim(ctx, inst.Base().ID, userID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("claim card %s: %w", domain.MaskCardNumber(number), err)
	}

	s.log.Info("card claimed",
		zap.String("user_id", userID),
		zap.String("card_id", claimed.Base().ID),
		zap.String("kind", string(claimed.Kind())),
		zap.String("card_number", domain.MaskCardNumber(number)))
	return claimed, nil
}

// Issue stores a new unowned card. Its number must match its kind.
func (s *Service) Issue(ctx context.Context, inst domain.Instrument) (domain.Instrument, error) {
	kind, number, err := VerifyCardNumber(inst.Base().CardNumber)
	if err != nil {
		return nil, err
	}
	if kind != inst.Kind() {
		return nil, fmt.Errorf("card number prefix does not match %s: %w", inst.Kind(), domain.ErrInvalidCode)
	}

	switch v := inst.(type) {
	case *domain.StampCard:
		if v.StampCapacity <= 0 || v.CurrentStamps < 0 || v.CurrentStamps > v.StampCapacity {
			return nil, fmt.Errorf("stamp card %d/%d: %w", v.CurrentStamps, v.StampCapacity, domain.ErrInvalidAmount)
		}
	case *domain.GiftCard:
		if !v.MonetaryValue.IsPositive() {
			return nil, fmt.Errorf("gift card value %s: %w", v.MonetaryValue, domain.ErrInvalidAmount)
		}
		v.MonetaryValue = domain.RoundMoney(v.MonetaryValue)
	}

	_, err = s.store.GetByNumber(ctx, number)
	switch {
	case err == nil:
		return nil, fmt.Errorf("card %s already issued: %w", domain.MaskCardNumber(number), domain.ErrInvalidCode)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup card: %w", err)
	}

	base := inst.Base()
	base.CardNumber = number
	base.OwnerID = ""
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
	base.DateAdded = s.clock.Now()

	if err := s.store.Upsert(ctx, inst); err != nil {
		return nil, fmt.Errorf("issue card: %w", err)
	}
	return inst, nil
}

// UsableGiftCard returns the gift card if it belongs to userID, is not
// redeemed and has not expired.
func (s *Service) UsableGiftCard(ctx context.Context, userID, cardID string) (*domain.GiftCard, error) {
	inst, err := s.Card(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	gc, ok := inst.(*domain.GiftCard)
	if !ok {
		return nil, fmt.Errorf("card %s is not a gift card: %w", cardID, domain.ErrNotFound)
	}
	if err := gc.CheckUsable(s.clock.Now()); err != nil {
		return nil, err
	}
	return gc, nil
}

// RedeemGiftCard checks usability and marks the card redeemed.
func (s *Service) RedeemGiftCard(ctx context.Context, userID, cardID string) (*domain.GiftCard, error) {
	gc, err := s.UsableGiftCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkGiftCardRedeemed(ctx, cardID); err != nil {
		return nil, fmt.Errorf("redeem gift card %s: %w", cardID, err)
	}
	gc.Redeemed = true
	return gc, nil
}

// RestoreGiftCard undoes RedeemGiftCard.
func (s *Service) RestoreGiftCard(ctx context.Context, cardID string) error {
	if err := s.store.RestoreGiftCard(ctx, cardID); err != nil {
		return fmt.Errorf("restore gift card %s: %w", cardID, err)
	}
	return nil
}
