package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	db *Store
}

// NewProductRepository создаёт каталог поверх таблицы products.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store}
}

func (r *productRepository) List(ctx context.Context, offset, limit int) ([]domain.ProductSummary, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}

	rows, err := r.db.db.QueryContext(ctx, `
		SELECT id, name, price::text, images, category, slug, created_at
		FROM products
		ORDER BY created_at DESC, id
		OFFSET $1
		LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductSummary, 0, limit)
	for rows.Next() {
		var (
			product domain.ProductSummary
			price   string
			images  []byte
		)
		if err := rows.Scan(&product.ID, &product.Name, &price, &images, &product.Category, &product.Slug, &product.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if product.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of product %s: %w", product.ID, err)
		}
		if err := json.Unmarshal(images, &product.Images); err != nil {
			return nil, fmt.Errorf("decode images of product %s: %w", product.ID, err)
		}
		product.CreatedAt = product.CreatedAt.UTC()
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return result, nil
}

func (r *productRepository) Upsert(ctx context.Context, products ...domain.ProductSummary) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin products tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, product := range products {
		if product.ID == "" {
			return domain.ErrProductIDRequired
		}
		images := product.Images
		if images == nil {
			images = []string{}
		}
		imagesJSON, err := json.Marshal(images)
		if err != nil {
			return fmt.Errorf("encode images of product %s: %w", product.ID, err)
		}
		createdAt := product.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, price, images, category, slug, created_at)
			VALUES ($1, $2, $3::numeric, $4::jsonb, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    price = EXCLUDED.price,
			    images = EXCLUDED.images,
			    category = EXCLUDED.category,
			    slug = EXCLUDED.slug,
			    created_at = EXCLUDED.created_at
		`, product.ID, product.Name, product.Price.String(), string(imagesJSON), product.Category, product.Slug, createdAt); err != nil {
			return fmt.Errorf("upsert product %s: %w", product.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit products tx: %w", err)
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
