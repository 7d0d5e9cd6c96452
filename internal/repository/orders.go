package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/lib/pq"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

const orderColumns = `id, user_id, items, subtotal, discount, total, coin_subtotal,
	gift_card_id, gift_card_value, coins_used, status, delivery_date, delivery_window,
	payment_method, customer_name, customer_phone, customer_address, created_at, status_updated_at`

type orderCreatedEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Total      string    `json:"total"`
	CoinsUsed  int64     `json:"coins_used"`
	GiftCardID string    `json:"gift_card_id,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type orderStatusChangedEvent struct {
	OrderID   string    `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// CreateOrder inserts the order and its order.created outbox event in one
// transaction.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	payload, err := json.Marshal(orderCreatedEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Total:      order.Total.StringFixed(domain.MoneyPlaces),
		CoinsUsed:  order.Loyalty.CoinsUsed,
		GiftCardID: order.Loyalty.GiftCardID,
		Status:     order.Status.String(),
		CreatedAt:  order.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	var deliveryDate sql.NullTime
	if !order.Delivery.Date.IsZero() {
		deliveryDate = sql.NullTime{Time: order.Delivery.Date, Valid: true}
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO orders (` + orderColumns + `)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

		_, insertErr := tx.ExecContext(ctx, query,
			order.ID,
			order.UserID,
			itemsJSON,
			order.Subtotal,
			order.Discount,
			order.Total,
			order.CoinSubtotal,
			order.Loyalty.GiftCardID,
			order.Loyalty.GiftCardValue,
			order.Loyalty.CoinsUsed,
			order.Status,
			deliveryDate,
			order.Delivery.Window,
			order.PaymentMethod,
			order.Customer.Name,
			order.Customer.Phone,
			order.Customer.Address,
			order.CreatedAt,
			order.StatusUpdatedAt)
		if insertErr != nil {
			var pqErr *pq.Error
			if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
				return ErrDuplicateOrder
			}
			return fmt.Errorf("insert order: %w", insertErr)
		}
		return insertOutbox(ctx, tx, order.ID, EventOrderCreated, payload)
	})
}

func (r *Repository) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.listOrders(ctx, query, userID)
}

func (r *Repository) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at ASC`
	return r.listOrders(ctx, query, status)
}

// UpdateOrderStatus is a compare-and-set on the status column. The status
// change and its outbox event commit together.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	payload, err := json.Marshal(orderStatusChangedEvent{
		OrderID:   id,
		From:      from.String(),
		To:        to.String(),
		ChangedAt: at,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, status_updated_at = $2 WHERE id = $3 AND status = $4`,
			to, at, id, from)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			var actual domain.OrderStatus
			err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&actual)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("query order status: %w", err)
			}
			return &domain.InvalidTransitionError{From: actual, To: to}
		}
		return insertOutbox(ctx, tx, id, EventOrderStatusChanged, payload)
	})
}

func (r *Repository) listOrders(ctx context.Context, query string, arg any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON []byte
	var deliveryDate sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&itemsJSON,
		&order.Subtotal,
		&order.Discount,
		&order.Total,
		&order.CoinSubtotal,
		&order.Loyalty.GiftCardID,
		&order.Loyalty.GiftCardValue,
		&order.Loyalty.CoinsUsed,
		&order.Status,
		&deliveryDate,
		&order.Delivery.Window,
		&order.PaymentMethod,
		&order.Customer.Name,
		&order.Customer.Phone,
		&order.Customer.Address,
		&order.CreatedAt,
		&order.StatusUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deliveryDate.Valid {
		order.Delivery.Date = deliveryDate.Time
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &order, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
