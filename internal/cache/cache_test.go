package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestSessionStore_RoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	session := &domain.Session{
		ID:     "sess-1",
		UserID: "alice",
		Items: []domain.CartLineItem{{
			LineID:          "line-1",
			ProductID:       "croissant",
			UnitPrice:       domain.MustMoney("25"),
			UnitCoinPrice:   100,
			Quantity:        2,
			SelectedOptions: []string{"warm"},
			SelectedExtras:  []domain.ProductExtra{{ID: "extra-chocolate", Price: domain.MustMoney("4")}},
		}},
		Loyalty: domain.LoyaltySelection{GiftCardID: "gift-1", GiftCardValue: domain.MustMoney("25"), Confirmed: true},
	}
	require.NoError(t, store.SaveSession(ctx, session))
	assert.True(t, mr.Exists("session:sess-1"))
	assert.Equal(t, time.Hour, mr.TTL("session:sess-1"))

	got, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].UnitPrice.Equal(domain.MustMoney("25")))
	assert.True(t, got.Items[0].SelectedExtras[0].Price.Equal(domain.MustMoney("4")))
	assert.True(t, got.Loyalty.Confirmed)
	assert.True(t, got.Loyalty.GiftCardValue.Equal(domain.MustMoney("25")))
}

func TestSessionStore_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &domain.Session{ID: "sess-1"}))
	mr.FastForward(2 * time.Minute)

	_, err := store.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &domain.Session{ID: "sess-1"}))
	require.NoError(t, store.DeleteSession(ctx, "sess-1"))

	_, err := store.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_CorruptedData(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client, time.Hour)

	require.NoError(t, mr.Set("session:bad", "{not json"))

	_, err := store.GetSession(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	mr.Close()

	_, err := store.GetSession(context.Background(), "sess-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestProductCache_MissSetGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewProductCache(client)
	ctx := context.Background()

	_, err := c.Get(ctx, "croissant")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, &domain.Product{ID: "croissant", Name: "Butter Croissant", Price: domain.MustMoney("25")}))

	ttl := mr.TTL("product:croissant")
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)

	got, err := c.Get(ctx, "croissant")
	require.NoError(t, err)
	assert.Equal(t, "Butter Croissant", got.Name)
	assert.True(t, got.Price.Equal(domain.MustMoney("25")))

	require.NoError(t, c.Delete(ctx, "croissant"))
	_, err = c.Get(ctx, "croissant")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
