package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const defaultClientTimeout = 10 * time.Second

// Client запрашивает листинг у удалённого сервиса.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithHTTPClient подменяет http.Client (таймауты, транспорт в тестах).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// NewClient создаёт клиента для сервиса с адресом baseURL (например http://localhost:8080).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultClientTimeout},
		tracer:  otel.Tracer("storefront/catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage выполняет GET /api/products?page=&limit=. Любой не-2xx ответ считается ошибкой.
func (c *Client) FetchPage(ctx context.Context, page, limit int) (domain.ProductPage, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.fetch_page", trace.WithAttributes(
		attribute.Int("catalog.page", page),
		attribute.Int("catalog.limit", limit),
	))
	defer span.End()

	result, err := c.fetch(ctx, page, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ProductPage{}, err
	}
	span.SetAttributes(
		attribute.Int("catalog.returned", len(result.Products)),
		attribute.Bool("catalog.has_more", result.HasMore),
	)
	return result, nil
}

func (c *Client) fetch(ctx context.Context, page, limit int) (domain.ProductPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + ProductsPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("build products request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("request products: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ProductPage{}, fmt.Errorf("products endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result domain.ProductPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.ProductPage{}, fmt.Errorf("decode products response: %w", err)
	}
	if result.Products == nil {
		result.Products = []domain.ProductSummary{}
	}
	return result, nil
}
