package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
)

// Get returns a copy of the instrument.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[id]
	if !ok {
		return nil, fmt.Errorf("instrument %s: %w", id, domain.ErrNotFound)
	}
	return domain.CloneInstrument(inst), nil
}

func (s *MemoryStore) GetByNumber(_ context.Context, cardNumber string) (domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNumber[cardNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.CloneInstrument(s.instruments[id]), nil
}

// ListByOwner returns the owner's instruments, oldest first.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Instrument
	for _, inst := range s.instruments {
		if inst.Base().OwnerID == ownerID {
			out = append(out, domain.CloneInstrument(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Base().DateAdded.Before(out[j].Base().DateAdded)
	})
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, inst domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := inst.Base()
	if prev, ok := s.instruments[base.ID]; ok && prev.Base().CardNumber != base.CardNumber {
		delete(s.byNumber, prev.Base().CardNumber)
	}
	s.instruments[base.ID] = domain.CloneInstrument(inst)
	s.byNumber[base.CardNumber] = base.ID
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, id, ownerID string, at time.Time) (domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instruments[id]
	if !ok {
		return nil, fmt.Errorf("instrument %s: %w", id, domain.ErrNotFound)
	}
	base := inst.Base()
	if base.OwnerID != "" && base.OwnerID != ownerID {
		return nil, fmt.Errorf("instrument %s is owned by another user: %w", id, domain.ErrInvalidCode)
	}
	base.OwnerID = ownerID
	base.DateAdded = at
	return domain.CloneInstrument(inst), nil
}

func (s *MemoryStore) AddStamp(_ context.Context, id string) (*domain.StampCard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.instruments[id].(*domain.StampCard)
	if !ok {
		return nil, false, fmt.Errorf("stamp card %s: %w", id, domain.ErrNotFound)
	}
	added := card.AddStamp()
	return domain.CloneInstrument(card).(*domain.StampCard), added, nil
}

func (s *MemoryStore) MarkGiftCardRedeemed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.instruments[id].(*domain.GiftCard)
	if !ok {
		return fmt.Errorf("gift card %s: %w", id, domain.ErrNotFound)
	}
	if card.Redeemed {
		return fmt.Errorf("gift card %s: %w", id, domain.ErrExpiredInstrument)
	}
	card.Redeemed = true
	return nil
}

func (s *MemoryStore) RestoreGiftCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.instruments[id].(*domain.GiftCard)
	if !ok {
		return fmt.Errorf("gift card %s: %w", id, domain.ErrNotFound)
	}
	card.Redeemed = false
	return nil
}
