package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_loyalty/internal/cache"
	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowReader struct {
	calls   atomic.Int32
	release chan struct{}
}

func (r *slowReader) ListProducts(_ context.Context, _ string) ([]*domain.Product, error) {
	r.calls.Add(1)
	return []*domain.Product{{ID: "p1"}}, nil
}

func (r *slowReader) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	r.calls.Add(1)
	<-r.release
	return &domain.Product{ID: id, Name: "Croissant"}, nil
}

func TestService_GetProductCollapsesConcurrentReads(t *testing.T) {
	reader := &slowReader{release: make(chan struct{})}
	svc := NewService(reader, nil, zap.NewNop())

	var wg sync.WaitGroup
	results := make([]*domain.Product, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := svc.GetProduct(context.Background(), "p1")
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(reader.release)
	wg.Wait()

	assert.Equal(t, int32(1), reader.calls.Load())
	for _, p := range results {
		assert.Equal(t, "Croissant", p.Name)
	}
	results[0].Name = "changed"
	assert.Equal(t, "Croissant", results[1].Name)
}

func TestService_ListProducts(t *testing.T) {
	svc := NewService(&slowReader{}, nil, zap.NewNop())

	products, err := svc.ListProducts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

type mockCache struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	getErr   error
	sets     chan string
}

func newMockCache() *mockCache {
	return &mockCache{products: map[string]*domain.Product{}, sets: make(chan string, 10)}
}

func (m *mockCache) Get(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.products[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return p, nil
}

func (m *mockCache) Set(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
	m.sets <- p.ID
	return nil
}

type countingReader struct {
	calls atomic.Int32
}

func (r *countingReader) ListProducts(_ context.Context, _ string) ([]*domain.Product, error) {
	return nil, nil
}

func (r *countingReader) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	r.calls.Add(1)
	if id == "missing" {
		return nil, domain.ErrNotFound
	}
	return &domain.Product{ID: id, Name: "Mint Tea"}, nil
}

func TestService_GetProductFillsCacheOnMiss(t *testing.T) {
	reader := &countingReader{}
	c := newMockCache()
	svc := NewService(reader, c, zap.NewNop())
	ctx := context.Background()

	p, err := svc.GetProduct(ctx, "mint-tea")
	require.NoError(t, err)
	assert.Equal(t, "Mint Tea", p.Name)

	select {
	case id := <-c.sets:
		assert.Equal(t, "mint-tea", id)
	case <-time.After(time.Second):
		t.Fatal("cache was not filled")
	}

	_, err = svc.GetProduct(ctx, "mint-tea")
	require.NoError(t, err)
	assert.Equal(t, int32(1), reader.calls.Load())
}

func TestService_GetProductFallsBackWhenCacheFails(t *testing.T) {
	reader := &countingReader{}
	c := newMockCache()
	c.getErr = errors.New("redis down")
	svc := NewService(reader, c, zap.NewNop())

	p, err := svc.GetProduct(context.Background(), "mint-tea")
	require.NoError(t, err)
	assert.Equal(t, "mint-tea", p.ID)
}

func TestService_GetProductNotFound(t *testing.T) {
	svc := NewService(&countingReader{}, newMockCache(), zap.NewNop())

	_, err := svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
