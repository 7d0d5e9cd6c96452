package catalog

import (
	"context"
	"testing"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Repository {
	repo, err := NewRepository(":memory:")
	require.NoError(t, err)

	require.NoError(t, repo.RunMigrations("./migrations"))

	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestListProducts_ReturnsSeededCatalog(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.ListProducts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, products, 5)
}

func TestListProducts_FiltersByCategory(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.ListProducts(context.Background(), "coffee")
	require.NoError(t, err)
	require.Len(t, products, 2)
	for _, p := range products {
		assert.Equal(t, "coffee", p.Category)
	}
}

func TestGetProduct_LoadsOptionsAndExtras(t *testing.T) {
	repo := setupTestDB(t)

	p, err := repo.GetProduct(context.Background(), "caramel-latte")
	require.NoError(t, err)

	assert.Equal(t, "Caramel Latte", p.Name)
	assert.True(t, p.Price.Equal(domain.MustMoney("30")))
	assert.True(t, p.UnitPrice().Equal(domain.MustMoney("24")))
	assert.Equal(t, int64(120), p.CoinPrice)
	assert.True(t, p.IsFlashDeal)
	assert.Equal(t, []string{"oat milk", "large"}, p.Options)
	require.Len(t, p.Extras, 2)

	shot, ok := p.Extra("extra-shot")
	require.True(t, ok)
	assert.True(t, shot.Price.Equal(domain.MustMoney("7.50")))
}

func TestGetProduct_SeedPrices(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	croissant, err := repo.GetProduct(ctx, "croissant")
	require.NoError(t, err)
	assert.True(t, croissant.UnitPrice().Equal(domain.MustMoney("25")))
	assert.Equal(t, int64(100), croissant.CoinPrice)

	cake, err := repo.GetProduct(ctx, "chocolate-cake")
	require.NoError(t, err)
	assert.True(t, cake.UnitPrice().Equal(domain.MustMoney("35")))
	assert.Equal(t, int64(150), cake.CoinPrice)
	assert.Empty(t, cake.Extras)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
