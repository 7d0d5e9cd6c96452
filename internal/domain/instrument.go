package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type InstrumentKind string

const (
	InstrumentKindStampCard InstrumentKind = "stamp_card"
	InstrumentKindGiftCard  InstrumentKind = "gift_card"
)

// InstrumentBase holds the fields every loyalty instrument shares.
type InstrumentBase struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	CardNumber string    `json:"card_number"`
	DateAdded  time.Time `json:"date_added"`
}

// Instrument is a closed union of *StampCard and *GiftCard.
// Dispatch on the concrete type with a type switch.
type Instrument interface {
	Base() *InstrumentBase
	Kind() InstrumentKind
	isInstrument()
}

type RewardStage struct {
	RequiredStamps int    `json:"required_stamps"`
	Description    string `json:"reward_description"`
}

type StampCard struct {
	InstrumentBase
	CurrentStamps int           `json:"current_stamps"`
	StampCapacity int           `json:"stamp_capacity"`
	RewardStages  []RewardStage `json:"reward_stages"`
}

func (c *StampCard) Base() *InstrumentBase { return &c.InstrumentBase }
func (c *StampCard) Kind() InstrumentKind  { return InstrumentKindStampCard }
func (c *StampCard) isInstrument()         {}

func (c *StampCard) IsFull() bool {
	return c.CurrentStamps >= c.StampCapacity
}

// AddStamp increments the stamp count unless the card is full.
// It reports whether a stamp was added.
func (c *StampCard) AddStamp() bool {
	if c.IsFull() {
		return false
	}
	c.CurrentStamps++
	return true
}

// NextStage is the first stage still ahead of the current stamp count.
func (c *StampCard) NextStage() (RewardStage, bool) {
	for _, s := range c.RewardStages {
		if s.RequiredStamps > c.CurrentStamps {
			return s, true
		}
	}
	return RewardStage{}, false
}

func (c *StampCard) CompletedStages() []RewardStage {
	var done []RewardStage
	for _, s := range c.RewardStages {
		if s.RequiredStamps <= c.CurrentStamps {
			done = append(done, s)
		}
	}
	return done
}

type GiftCard struct {
	InstrumentBase
	MonetaryValue decimal.Decimal `json:"monetary_value"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	Redeemed      bool            `json:"redeemed"`
}

func (g *GiftCard) Base() *InstrumentBase { return &g.InstrumentBase }
func (g *GiftCard) Kind() InstrumentKind  { return InstrumentKindGiftCard }
func (g *GiftCard) isInstrument()         {}

// CheckUsable fails with ErrExpiredInstrument when the card is redeemed or
// its expiry date is before the calendar day of now.
func (g *GiftCard) CheckUsable(now time.Time) error {
	if g.Redeemed {
		return fmt.Errorf("gift card %s already redeemed: %w", g.ID, ErrExpiredInstrument)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	exp := g.ExpiryDate.In(now.Location())
	expDay := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, now.Location())
	if expDay.Before(today) {
		return fmt.Errorf("gift card %s expired on %s: %w", g.ID, expDay.Format(time.DateOnly), ErrExpiredInstrument)
	}
	return nil
}

// CloneInstrument returns a deep copy of inst.
func CloneInstrument(inst Instrument) Instrument {
	switch v := inst.(type) {
	case *StampCard:
		c := *v
		c.RewardStages = append([]RewardStage(nil), v.RewardStages...)
		return &c
	case *GiftCard:
		c := *v
		return &c
	default:
		return nil
	}
}

// MaskCardNumber keeps only the last four digits.
func MaskCardNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	masked := make([]byte, len(number))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(number)-4:], number[len(number)-4:])
	return string(masked)
}
