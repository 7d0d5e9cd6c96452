package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_loyalty/internal/cache"
	"github.com/fjod/go_loyalty/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type ProductReader interface {
	ListProducts(ctx context.Context, category string) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// ProductCache returns cache.ErrCacheMiss for absent entries.
type ProductCache interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
}

// Service fronts the catalog repository with an optional cache.
// Concurrent lookups of the same product share one query.
type Service struct {
	repo  ProductReader
	cache ProductCache
	log   *zap.Logger
	sfg   singleflight.Group // Prevents cache stampede
}

// NewService accepts a nil cache.
func NewService(repo ProductReader, productCache ProductCache, log *zap.Logger) *Service {
	return &Service{repo: repo, cache: productCache, log: log}
}

func (s *Service) ListProducts(ctx context.Context, category string) ([]*domain.Product, error) {
	v, err, _ := s.sfg.Do("list:"+category, func() (interface{}, error) {
		return s.repo.ListProducts(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.Product), nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	v, err, _ := s.sfg.Do("product:"+id, func() (interface{}, error) {
		if s.cache != nil {
			p, err := s.cache.Get(ctx, id)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				s.log.Warn("product cache get failed", zap.String("product_id", id), zap.Error(err))
			}
		}

		p, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			go func(p domain.Product) {
				setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := s.cache.Set(setCtx, &p); err != nil {
					s.log.Warn("product cache set failed", zap.String("product_id", p.ID), zap.Error(err))
				}
			}(*p)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight hands the same pointer to every waiter.
	p := *v.(*domain.Product)
	return &p, nil
}
