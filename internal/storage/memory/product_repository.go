package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepositoryInMemory — каталог в памяти, упорядоченный как и Postgres-реализация.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ProductSummary
}

// NewProductRepository возвращает in-memory каталог.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.ProductSummary)}
}

// List возвращает срез каталога: новые первыми, при равенстве — по id.
func (r *productRepositoryInMemory) List(_ context.Context, offset, limit int) ([]domain.ProductSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ProductSummary, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []domain.ProductSummary{}, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Upsert сохраняет товары, перезаписывая существующие по id.
func (r *productRepositoryInMemory) Upsert(_ context.Context, products ...domain.ProductSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, product := range products {
		if product.ID == "" {
			return domain.ErrProductIDRequired
		}
		product.Images = append([]string(nil), product.Images...)
		r.items[product.ID] = product
	}
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
