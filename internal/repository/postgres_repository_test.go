package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

var createdAt = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestOrder(userID string, at time.Time) *domain.Order {
	return &domain.Order{
		ID:     uuid.NewString(),
		UserID: userID,
		Items: []domain.CartLineItem{
			{LineID: "l1", ProductID: "croissant", Name: "Butter Croissant", UnitPrice: domain.MustMoney("25"), UnitCoinPrice: 100, Quantity: 2},
		},
		Subtotal:        domain.MustMoney("50"),
		Discount:        domain.MustMoney("12.5"),
		Total:           domain.MustMoney("37.5"),
		CoinSubtotal:    200,
		Loyalty:         domain.AppliedLoyalty{GiftCardID: "gc-1", GiftCardValue: domain.MustMoney("10"), CoinsUsed: 25},
		Status:          domain.OrderStatusNew,
		Delivery:        domain.DeliverySelection{Date: at, Window: "14:00-16:00"},
		PaymentMethod:   domain.PaymentMethodCash,
		Customer:        domain.CustomerInfo{Name: "Amina", Phone: "0612345678", Address: "12 Rue Atlas"},
		CreatedAt:       at,
		StatusUpdatedAt: at,
	}
}

func TestOrders_CreateAndGet(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1", createdAt)
	require.NoError(t, repo.CreateOrder(ctx, order))

	fetched, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.UserID, fetched.UserID)
	assert.True(t, order.Total.Equal(fetched.Total))
	assert.True(t, order.Discount.Equal(fetched.Discount))
	assert.True(t, order.Loyalty.GiftCardValue.Equal(fetched.Loyalty.GiftCardValue))
	assert.Equal(t, order.Loyalty.CoinsUsed, fetched.Loyalty.CoinsUsed)
	assert.Equal(t, order.Customer, fetched.Customer)
	assert.Equal(t, domain.OrderStatusNew, fetched.Status)
	assert.True(t, order.CreatedAt.Equal(fetched.CreatedAt))
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, 2, fetched.Items[0].Quantity)
	assert.True(t, fetched.Items[0].UnitPrice.Equal(domain.MustMoney("25")))

	assert.ErrorIs(t, repo.CreateOrder(ctx, order), ErrDuplicateOrder)

	_, err = repo.GetOrderByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrders_ListOrdering(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := newTestOrder("user-1", createdAt)
	second := newTestOrder("user-1", createdAt.Add(time.Hour))
	other := newTestOrder("user-2", createdAt.Add(2*time.Hour))
	for _, o := range []*domain.Order{first, second, other} {
		require.NoError(t, repo.CreateOrder(ctx, o))
	}

	mine, err := repo.ListOrdersByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	fresh, err := repo.ListOrdersByStatus(ctx, domain.OrderStatusNew)
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	assert.Equal(t, first.ID, fresh[0].ID)
	assert.Equal(t, other.ID, fresh[2].ID)
}

func TestOrders_UpdateStatusIsCompareAndSet(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1", createdAt)
	require.NoError(t, repo.CreateOrder(ctx, order))

	at := createdAt.Add(time.Minute)
	require.NoError(t, repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusNew, domain.OrderStatusProcessing, at))

	err := repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusNew, domain.OrderStatusRejected, at)
	var ite *domain.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.OrderStatusProcessing, ite.From)

	err = repo.UpdateOrderStatus(ctx, "missing", domain.OrderStatusNew, domain.OrderStatusProcessing, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	fetched, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, fetched.Status)
	assert.True(t, at.Equal(fetched.StatusUpdatedAt))
}

func TestOutbox_EventsFollowOrderWrites(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1", createdAt)
	require.NoError(t, repo.CreateOrder(ctx, order))
	require.NoError(t, repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusNew, domain.OrderStatusRejected, createdAt))

	events, err := repo.GetUnprocessedEvents(ctx, 100)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventOrderCreated, events[0].EventType)
	assert.Equal(t, EventOrderStatusChanged, events[1].EventType)
	assert.Equal(t, order.ID, events[1].AggregateID)

	var changed map[string]any
	require.NoError(t, json.Unmarshal(events[1].Payload, &changed))
	assert.Equal(t, "new", changed["from"])
	assert.Equal(t, "rejected", changed["to"])

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	events, err = repo.GetUnprocessedEvents(ctx, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderStatusChanged, events[0].EventType)
}

func coinTx(userID string, amount int64, typ domain.CoinTransactionType) domain.CoinTransaction {
	return domain.CoinTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		CreatedAt: createdAt,
	}
}

func TestCoins_ApplyIsAtomic(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	bal, err := repo.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	_, err = repo.Apply(ctx, coinTx("alice", 1250, domain.CoinTransactionEarned))
	require.NoError(t, err)

	balances, err := repo.Apply(ctx,
		coinTx("alice", -500, domain.CoinTransactionTransferred),
		coinTx("bob", 500, domain.CoinTransactionReceived))
	require.NoError(t, err)
	assert.Equal(t, int64(750), balances["alice"])
	assert.Equal(t, int64(500), balances["bob"])

	_, err = repo.Apply(ctx,
		coinTx("alice", -1000, domain.CoinTransactionTransferred),
		coinTx("bob", 1000, domain.CoinTransactionReceived))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	bal, err = repo.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal)

	history, err := repo.Transactions(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(-500), history[0].Amount)
	assert.Equal(t, int64(1250), history[1].Amount)

	limited, err := repo.Transactions(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCoins_ConcurrentTransfersConserveTotal(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	_, err := repo.Apply(ctx,
		coinTx("alice", 1000, domain.CoinTransactionEarned),
		coinTx("bob", 1000, domain.CoinTransactionEarned))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Apply(ctx,
				coinTx(from, -100, domain.CoinTransactionTransferred),
				coinTx(to, 100, domain.CoinTransactionReceived))
		}()
	}
	wg.Wait()

	a, err := repo.Balance(ctx, "alice")
	require.NoError(t, err)
	b, err := repo.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), a+b)
}
