// Package catalog отдаёт постраничный листинг товаров: сервис поверх репозитория,
// HTTP-обработчик GET /api/products и клиент к этому endpoint.
package catalog

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service выдаёт страницы каталога.
type Service struct {
	repo   domain.ProductRepository
	logger *log.Entry
}

// NewService создаёт сервис листинга.
func NewService(repo domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{repo: repo, logger: logger}
}

// ListPage возвращает страницу page (1-based) размером limit.
// Из репозитория читается limit+1 строк: лишняя строка только сообщает, что есть следующая страница.
func (s *Service) ListPage(ctx context.Context, page, limit int) (domain.ProductPage, error) {
	if err := domain.ValidatePageRequest(page, limit); err != nil {
		return domain.ProductPage{}, err
	}

	offset := (page - 1) * limit
	items, err := s.repo.List(ctx, offset, limit+1)
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("list products: %w", err)
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	if items == nil {
		items = []domain.ProductSummary{}
	}

	s.logger.WithFields(log.Fields{
		"page":     page,
		"limit":    limit,
		"returned": len(items),
		"has_more": hasMore,
	}).Debug("product page served")

	return domain.ProductPage{Products: items, HasMore: hasMore}, nil
}

// FetchPage позволяет использовать сервис как источник листинга без HTTP.
func (s *Service) FetchPage(ctx context.Context, page, limit int) (domain.ProductPage, error) {
	return s.ListPage(ctx, page, limit)
}
