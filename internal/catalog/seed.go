package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

//go:embed seed.yaml
var seedCatalog []byte

type seedFile struct {
	Products []domain.ProductSummary `yaml:"products"`
}

// LoadSeed возвращает встроенный демонстрационный каталог.
func LoadSeed() ([]domain.ProductSummary, error) {
	return DecodeSeed(bytes.NewReader(seedCatalog))
}

// DecodeSeed читает каталог в формате YAML.
func DecodeSeed(r io.Reader) ([]domain.ProductSummary, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return []domain.ProductSummary{}, nil
		}
		return nil, fmt.Errorf("decode seed catalog: %w", err)
	}
	for i, product := range file.Products {
		if product.ID == "" {
			return nil, fmt.Errorf("seed product #%d: %w", i, domain.ErrProductIDRequired)
		}
	}
	return file.Products, nil
}

// Seed заливает встроенный каталог в репозиторий.
func Seed(ctx context.Context, repo domain.ProductRepository) (int, error) {
	products, err := LoadSeed()
	if err != nil {
		return 0, err
	}
	if err := repo.Upsert(ctx, products...); err != nil {
		return 0, fmt.Errorf("seed products: %w", err)
	}
	return len(products), nil
}
