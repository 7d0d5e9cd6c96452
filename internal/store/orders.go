package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
)

func (s *MemoryStore) CreateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *MemoryStore) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return order.Clone(), nil
}

// ListOrdersByUserID returns the user's orders, newest first.
func (s *MemoryStore) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListOrdersByStatus returns orders in the given status, oldest first.
func (s *MemoryStore) ListOrdersByStatus(_ context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateOrderStatus moves the order from one status to another. If the
// stored status is not from, nothing changes.
func (s *MemoryStore) UpdateOrderStatus(_ context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if order.Status != from {
		return &domain.InvalidTransitionError{From: order.Status, To: to}
	}
	order.Status = to
	order.StatusUpdatedAt = at
	return nil
}
