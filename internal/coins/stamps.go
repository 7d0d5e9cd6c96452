package coins

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/go_loyalty/internal/domain"
	"go.uber.org/zap"
)

// ActivateStamp adds one stamp to the caller's stamp card after checking
// the proof code handed out in store. A full card stays full and the call
// still succeeds.
func (s *Service) ActivateStamp(ctx context.Context, userID, cardID, proofCode string) (*domain.StampCard, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	code := strings.TrimSpace(proofCode)
	if len(code) < s.policy.MinProofCodeLength {
		return nil, fmt.Errorf("proof code shorter than %d characters: %w", s.policy.MinProofCodeLength, domain.ErrInvalidCode)
	}

	inst, err := s.stamps.Get(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", cardID, err)
	}
	if _, ok := inst.(*domain.StampCard); !ok || inst.Base().OwnerID != userID {
		return nil, fmt.Errorf("stamp card %s: %w", cardID, domain.ErrNotFound)
	}

	card, added, err := s.stamps.AddStamp(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("add stamp to %s: %w", cardID, err)
	}

	if added {
		s.log.Info("stamp activated",
			zap.String("user_id", userID),
			zap.String("card_id", cardID),
			zap.Int("stamps", card.CurrentStamps),
			zap.Int("capacity", card.StampCapacity))
	} else {
		s.log.Info("stamp card already full", zap.String("card_id", cardID))
	}
	return card, nil
}
