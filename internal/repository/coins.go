package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/fjod/go_loyalty/internal/domain"
)

func (r *Repository) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM user_coins WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

// Apply writes the entries and the resulting balances in one transaction.
// Balance rows are locked in user id order so concurrent transfers between
// the same users cannot deadlock.
func (r *Repository) Apply(ctx context.Context, entries ...domain.CoinTransaction) (map[string]int64, error) {
	deltas := make(map[string]int64, len(entries))
	for _, e := range entries {
		deltas[e.UserID] += e.Amount
	}
	users := make([]string, 0, len(deltas))
	for userID := range deltas {
		users = append(users, userID)
	}
	sort.Strings(users)

	next := make(map[string]int64, len(users))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, userID := range users {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_coins (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`,
				userID); err != nil {
				return fmt.Errorf("ensure balance row: %w", err)
			}
			var balance int64
			if err := tx.QueryRowContext(ctx,
				`SELECT balance FROM user_coins WHERE user_id = $1 FOR UPDATE`,
				userID).Scan(&balance); err != nil {
				return fmt.Errorf("lock balance: %w", err)
			}
			balance += deltas[userID]
			if balance < 0 {
				return fmt.Errorf("user %s: %w", userID, domain.ErrInsufficientBalance)
			}
			next[userID] = balance
		}

		for _, userID := range users {
			if _, err := tx.ExecContext(ctx,
				`UPDATE user_coins SET balance = $1, updated_at = NOW() WHERE user_id = $2`,
				next[userID], userID); err != nil {
				return fmt.Errorf("update balance: %w", err)
			}
		}

		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO coin_transactions (id, user_id, type, amount, description, reference_id, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				e.ID, e.UserID, e.Type, e.Amount, e.Description, e.ReferenceID, e.CreatedAt); err != nil {
				return fmt.Errorf("insert coin transaction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Transactions returns up to limit entries, newest first. limit <= 0 means all.
func (r *Repository) Transactions(ctx context.Context, userID string, limit int) ([]domain.CoinTransaction, error) {
	query := `SELECT id, user_id, type, amount, description, reference_id, created_at
	          FROM coin_transactions WHERE user_id = $1 ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query coin transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.CoinTransaction
	for rows.Next() {
		var tx domain.CoinTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.Description, &tx.ReferenceID, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan coin transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
