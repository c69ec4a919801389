package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("test", "catalog")
}

// seededRepo создаёт каталог из n товаров; prod-000 — самый новый.
func seededRepo(t *testing.T, n int) domain.ProductRepository {
	t.Helper()
	repo := memory.NewProductRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	products := make([]domain.ProductSummary, 0, n)
	for i := 0; i < n; i++ {
		products = append(products, domain.ProductSummary{
			ID:        fmt.Sprintf("prod-%03d", i),
			Name:      fmt.Sprintf("Product %d", i),
			Price:     decimal.RequireFromString("9.99"),
			Images:    []string{fmt.Sprintf("/images/%d.jpg", i)},
			Slug:      fmt.Sprintf("product-%d", i),
			CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, repo.Upsert(context.Background(), products...))
	return repo
}

func TestService_ListPage(t *testing.T) {
	svc := catalog.NewService(seededRepo(t, 25), quietLogger())
	ctx := context.Background()

	tests := []struct {
		name      string
		page      int
		limit     int
		wantLen   int
		wantFirst string
		wantMore  bool
	}{
		{name: "first page", page: 1, limit: 12, wantLen: 12, wantFirst: "prod-000", wantMore: true},
		{name: "second page", page: 2, limit: 12, wantLen: 12, wantFirst: "prod-012", wantMore: true},
		{name: "last partial page", page: 3, limit: 12, wantLen: 1, wantFirst: "prod-024", wantMore: false},
		{name: "exact boundary", page: 1, limit: 25, wantLen: 25, wantFirst: "prod-000", wantMore: false},
		{name: "past the end", page: 10, limit: 12, wantLen: 0, wantMore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListPage(ctx, tt.page, tt.limit)
			require.NoError(t, err)
			require.NotNil(t, page.Products)
			assert.Len(t, page.Products, tt.wantLen)
			assert.Equal(t, tt.wantMore, page.HasMore)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, page.Products[0].ID)
			}
		})
	}
}

func TestService_ListPageValidation(t *testing.T) {
	svc := catalog.NewService(seededRepo(t, 1), quietLogger())

	_, err := svc.ListPage(context.Background(), 0, 12)
	assert.ErrorIs(t, err, domain.ErrInvalidPage)

	_, err = svc.ListPage(context.Background(), 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)

	_, err = svc.ListPage(context.Background(), 1, domain.MaxPageSize+1)
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)

	_, err = svc.ListPage(context.Background(), 1<<62, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidPage)
}

type failingRepo struct{ err error }

func (r failingRepo) List(context.Context, int, int) ([]domain.ProductSummary, error) {
	return nil, r.err
}

func (r failingRepo) Upsert(context.Context, ...domain.ProductSummary) error { return r.err }

func TestService_ListPageRepositoryError(t *testing.T) {
	repoErr := errors.New("connection reset")
	svc := catalog.NewService(failingRepo{err: repoErr}, quietLogger())

	_, err := svc.FetchPage(context.Background(), 1, 12)
	require.Error(t, err)
	assert.ErrorIs(t, err, repoErr)
}
