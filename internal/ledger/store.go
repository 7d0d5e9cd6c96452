package ledger

import (
	"context"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
)

// Store persists loyalty instruments. Every method is atomic with respect
// to a single instrument. Missing instruments yield domain.ErrNotFound.
type Store interface {
	Get(ctx context.Context, id string) (domain.Instrument, error)
	GetByNumber(ctx context.Context, cardNumber string) (domain.Instrument, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Instrument, error)
	Upsert(ctx context.Context, inst domain.Instrument) error

	// Claim sets the owner of an unowned instrument. Claiming an instrument
	// owned by someone else fails with domain.ErrInvalidCode.
	Claim(ctx context.Context, id, ownerID string, at time.Time) (domain.Instrument, error)

	// AddStamp increments a stamp card, leaving a full card unchanged.
	// It reports whether a stamp was added.
	AddStamp(ctx context.Context, id string) (*domain.StampCard, bool, error)

	// MarkGiftCardRedeemed fails with domain.ErrExpiredInstrument when the
	// card is already redeemed.
	MarkGiftCardRedeemed(ctx context.Context, id string) error
	RestoreGiftCard(ctx context.Context, id string) error
}
