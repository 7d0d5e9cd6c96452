package coins

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/pkg/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store keeps coin balances and their append-only history.
type Store interface {
	Balance(ctx context.Context, userID string) (int64, error)
	// Apply records all entries in one atomic step and returns the new
	// balance of every user touched. If any balance would drop below zero
	// it fails with domain.ErrInsufficientBalance and records nothing.
	Apply(ctx context.Context, entries ...domain.CoinTransaction) (map[string]int64, error)
	// Transactions returns up to limit entries, newest first.
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CoinTransaction, error)
}

// StampStore is the part of the instrument store stamp activation needs.
type StampStore interface {
	Get(ctx context.Context, id string) (domain.Instrument, error)
	AddStamp(ctx context.Context, id string) (*domain.StampCard, bool, error)
}

type Policy struct {
	CoinRate           decimal.Decimal
	RedemptionUnit     int64
	MaxPerTransaction  int64
	MinProofCodeLength int
}

func DefaultPolicy() Policy {
	return Policy{
		CoinRate:           decimal.RequireFromString("0.1"),
		RedemptionUnit:     10,
		MaxPerTransaction:  5000,
		MinProofCodeLength: 6,
	}
}

type Service struct {
	store  Store
	stamps StampStore
	policy Policy
	clock  clock.Clock
	log    *zap.Logger
}

func NewService(store Store, stamps StampStore, policy Policy, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{
		store:  store,
		stamps: stamps,
		policy: policy,
		clock:  clk,
		log:    log,
	}
}

type TransferResult struct {
	FromBalance int64 `json:"from_balance"`
	ToBalance   int64 `json:"to_balance"`
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrUnauthenticated
	}
	bal, err := s.store.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance of %s: %w", userID, err)
	}
	return bal, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.CoinTransaction, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	txs, err := s.store.Transactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history of %s: %w", userID, err)
	}
	return txs, nil
}

// Transfer moves coins between two users. Both sides are recorded in one
// atomic step, so the sum of the two balances is preserved.
func (s *Service) Transfer(ctx context.Context, fromUserID, toUserID string, amount int64) (TransferResult, error) {
	if fromUserID == "" {
		return TransferResult{}, domain.ErrUnauthenticated
	}
	if toUserID == "" {
		return TransferResult{}, fmt.Errorf("recipient: %w", domain.ErrNotFound)
	}
	if fromUserID == toUserID {
		return TransferResult{}, fmt.Errorf("transfer to self: %w", domain.ErrInvalidAmount)
	}
	if err := s.checkAmount(amount); err != nil {
		return TransferResult{}, err
	}

	now := s.clock.Now()
	ref := uuid.NewString()
	balances, err := s.store.Apply(ctx,
		domain.CoinTransaction{
			ID:          uuid.NewString(),
			UserID:      fromUserID,
			Type:        domain.CoinTransactionTransferred,
			Amount:      -amount,
			Description: "transfer to " + toUserID,
			ReferenceID: ref,
			CreatedAt:   now,
		},
		domain.CoinTransaction{
			ID:          uuid.NewString(),
			UserID:      toUserID,
			Type:        domain.CoinTransactionReceived,
			Amount:      amount,
			Description: "transfer from " + fromUserID,
			ReferenceID: ref,
			CreatedAt:   now,
		},
	)
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer %d coins: %w", amount, err)
	}

	s.log.Info("coins transferred",
		zap.String("from", fromUserID),
		zap.String("to", toUserID),
		zap.Int64("amount", amount),
		zap.String("reference_id", ref))
	return TransferResult{FromBalance: balances[fromUserID], ToBalance: balances[toUserID]}, nil
}

// RedeemForDiscount debits amount coins and returns their monetary value.
// amount must be a positive multiple of the redemption unit.
func (s *Service) RedeemForDiscount(ctx context.Context, userID string, amount int64) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, domain.ErrUnauthenticated
	}
	if err := s.checkAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if s.policy.RedemptionUnit > 0 && amount%s.policy.RedemptionUnit != 0 {
		return decimal.Zero, fmt.Errorf("%d is not a multiple of %d: %w", amount, s.policy.RedemptionUnit, domain.ErrInvalidAmount)
	}

	value := s.CoinValue(amount)
	_, err := s.store.Apply(ctx, domain.CoinTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        domain.CoinTransactionSpent,
		Amount:      -amount,
		Description: "redeemed for " + value.StringFixed(domain.MoneyPlaces) + " discount",
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("redeem %d coins: %w", amount, err)
	}
	return value, nil
}

// Spend debits coins used to pay part of an order.
func (s *Service) Spend(ctx context.Context, userID string, amount int64, orderID string) error {
	if amount <= 0 {
		return fmt.Errorf("spend %d coins: %w", amount, domain.ErrInvalidAmount)
	}
	_, err := s.store.Apply(ctx, domain.CoinTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        domain.CoinTransactionSpent,
		Amount:      -amount,
		Description: "order " + orderID,
		ReferenceID: orderID,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("spend %d coins: %w", amount, err)
	}
	return nil
}

// Refund returns coins taken by Spend.
func (s *Service) Refund(ctx context.Context, userID string, amount int64, orderID string) error {
	if amount <= 0 {
		return nil
	}
	_, err := s.store.Apply(ctx, domain.CoinTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        domain.CoinTransactionRefunded,
		Amount:      amount,
		Description: "refund for order " + orderID,
		ReferenceID: orderID,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("refund %d coins: %w", amount, err)
	}
	return nil
}

// Grant credits earned coins and returns the new balance.
func (s *Service) Grant(ctx context.Context, userID string, amount int64, description string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("grant: %w", domain.ErrNotFound)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("grant %d coins: %w", amount, domain.ErrInvalidAmount)
	}
	balances, err := s.store.Apply(ctx, domain.CoinTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        domain.CoinTransactionEarned,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("grant %d coins: %w", amount, err)
	}
	return balances[userID], nil
}

func (s *Service) CoinValue(amount int64) decimal.Decimal {
	return domain.RoundMoney(decimal.NewFromInt(amount).Mul(s.policy.CoinRate))
}

func (s *Service) checkAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount %d must be positive: %w", amount, domain.ErrInvalidAmount)
	}
	if s.policy.MaxPerTransaction > 0 && amount > s.policy.MaxPerTransaction {
		return fmt.Errorf("amount %d exceeds limit %d: %w", amount, s.policy.MaxPerTransaction, domain.ErrInvalidAmount)
	}
	return nil
}
