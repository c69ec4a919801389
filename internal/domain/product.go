package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ProductSummary — карточка товара в листинге каталога.
type ProductSummary struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
	Images   []string        `json:"images" yaml:"images"`
	Category string          `json:"category,omitempty" yaml:"category,omitempty"`
	Slug     string          `json:"slug" yaml:"slug"`
	// CreatedAt задаёт порядок листинга (новые первыми), наружу не отдаётся.
	CreatedAt time.Time `json:"-" yaml:"created_at"`
}

// ProductPage — одна страница листинга.
type ProductPage struct {
	Products []ProductSummary `json:"products"`
	HasMore  bool             `json:"hasMore"`
}

const (
	// DefaultPageSize — размер страницы листинга по умолчанию.
	DefaultPageSize = 12
	// MaxPageSize ограничивает limit в запросе листинга.
	MaxPageSize = 100
)

// ValidatePageRequest проверяет параметры постраничного запроса (page 1-based).
// page*limit обязан помещаться в int, иначе смещение страницы переполнится.
func ValidatePageRequest(page, limit int) error {
	if limit < 1 || limit > MaxPageSize {
		return ErrInvalidLimit
	}
	if page < 1 || page > math.MaxInt/limit {
		return ErrInvalidPage
	}
	return nil
}
