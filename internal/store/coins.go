package store

import (
	"context"
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
)

func (s *MemoryStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[userID], nil
}

// Apply records all entries or none. It returns the resulting balance of
// every user touched.
func (s *MemoryStore) Apply(_ context.Context, entries ...domain.CoinTransaction) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: compute resulting balances and reject any overdraft
	next := make(map[string]int64, len(entries))
	for _, e := range entries {
		bal, seen := next[e.UserID]
		if !seen {
			bal = s.balances[e.UserID]
		}
		bal += e.Amount
		if bal < 0 {
			return nil, fmt.Errorf("user %s: %w", e.UserID, domain.ErrInsufficientBalance)
		}
		next[e.UserID] = bal
	}

	// Second pass: commit
	for userID, bal := range next {
		s.balances[userID] = bal
	}
	for _, e := range entries {
		s.transactions[e.UserID] = append(s.transactions[e.UserID], e)
	}
	return next, nil
}

// Transactions returns up to limit entries, newest first. limit <= 0 means all.
func (s *MemoryStore) Transactions(_ context.Context, userID string, limit int) ([]domain.CoinTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.transactions[userID]
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.CoinTransaction, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out, nil
}
