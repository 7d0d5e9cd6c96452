package cart

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/fjod/go_loyalty/pkg/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStore persists sessions. GetSession fails with domain.ErrNotFound
// for unknown or expired sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	SaveSession(ctx context.Context, s *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type GiftCardChecker interface {
	UsableGiftCard(ctx context.Context, userID, cardID string) (*domain.GiftCard, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

const lockStripes = 64

// Service manages shopping sessions: the cart and the loyalty selection.
// Mutations of one session are serialized within the process.
type Service struct {
	store     SessionStore
	products  ProductLookup
	giftCards GiftCardChecker
	balances  BalanceReader
	engine    *pricing.Engine
	clock     clock.Clock
	log       *zap.Logger

	locks [lockStripes]sync.Mutex
}

func NewService(
	store SessionStore,
	products ProductLookup,
	giftCards GiftCardChecker,
	balances BalanceReader,
	engine *pricing.Engine,
	clk clock.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		store:     store,
		products:  products,
		giftCards: giftCards,
		balances:  balances,
		engine:    engine,
		clock:     clk,
		log:       log,
	}
}

// Start opens an empty session for userID.
func (s *Service) Start(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	now := s.clock.Now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Get loads a session owned by userID.
func (s *Service) Get(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return session, nil
}

// End discards the session, as on logout.
func (s *Service) End(ctx context.Context, sessionID, userID string) error {
	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Quote prices the session with its current loyalty selection.
func (s *Service) Quote(session *domain.Session) pricing.Breakdown {
	return s.engine.Price(session.Items, pricing.Selection{
		GiftCardValue: session.Loyalty.GiftCardValue,
		CoinsToUse:    session.Loyalty.CoinsToUse,
	})
}

// CompleteCheckout empties the cart and the loyalty selection after an
// order was placed. The session itself stays open.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	return s.mutate(ctx, sessionID, userID, func(session *domain.Session) error {
		session.Items = nil
		session.Loyalty = domain.LoyaltySelection{}
		return nil
	})
}

// mutate loads the session, applies fn and saves the result. Nothing is
// saved when fn fails.
func (s *Service) mutate(ctx context.Context, sessionID, userID string, fn func(*domain.Session) error) (*domain.Session, error) {
	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = s.clock.Now()
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (s *Service) lock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%lockStripes]
}
