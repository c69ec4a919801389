// Package productlist хранит состояние постраничного листинга товаров и догружает следующие страницы.
package productlist

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// firstLoadMorePage — первая страница приходит при создании листинга, догрузка начинается со второй.
const firstLoadMorePage = 2

// Fetcher запрашивает страницу листинга (page 1-based).
type Fetcher interface {
	FetchPage(ctx context.Context, page, limit int) (domain.ProductPage, error)
}

// Options задаёт параметры листинга.
type Options struct {
	Logger   *log.Entry
	Metrics  *metrics.Metrics
	PageSize int
}

// Option настраивает List.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithPageSize задаёт фиксированный размер запрашиваемой страницы.
func WithPageSize(size int) Option {
	return func(opts *Options) {
		opts.PageSize = size
	}
}

// List — растущий список товаров одного представления.
type List struct {
	source   Fetcher
	pageSize int
	logger   *log.Entry
	metrics  *metrics.Metrics

	mu       sync.Mutex
	products []domain.ProductSummary
	hasMore  bool
	loading  bool
	page     int
}

// New создаёт листинг с уже полученной первой страницей.
func New(initial []domain.ProductSummary, hasMore bool, source Fetcher, options ...Option) *List {
	opts := Options{PageSize: domain.DefaultPageSize}
	for _, option := range options {
		option(&opts)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = domain.DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "product-list")
	}

	return &List{
		source:   source,
		pageSize: opts.PageSize,
		logger:   logger,
		metrics:  opts.Metrics,
		products: append([]domain.ProductSummary(nil), initial...),
		hasMore:  hasMore,
		page:     firstLoadMorePage,
	}
}

// LoadMore запрашивает следующую страницу и дописывает её в конец.
// Пока идёт загрузка или страниц больше нет, вызов ничего не делает и запрос не отправляет.
// При ошибке products/hasMore/page не меняются; флаг загрузки сбрасывается всегда, чтобы можно было повторить.
func (l *List) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	if l.loading || !l.hasMore {
		l.mu.Unlock()
		l.metrics.RecordProductListFetch(metrics.ResultSkipped)
		return nil
	}
	l.loading = true
	page := l.page
	l.mu.Unlock()

	// Если источник запаникует, флаг всё равно должен сброситься.
	applied := false
	defer func() {
		if !applied {
			l.mu.Lock()
			l.loading = false
			l.mu.Unlock()
		}
	}()

	result, err := l.source.FetchPage(ctx, page, l.pageSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	applied = true
	l.loading = false

	if err != nil {
		l.metrics.RecordProductListFetch(metrics.ResultError)
		l.logger.WithError(err).WithFields(log.Fields{
			"page":  page,
			"limit": l.pageSize,
		}).Error("failed to load more products")
		return fmt.Errorf("load products page %d: %w", page, err)
	}

	l.products = append(l.products, result.Products...)
	l.hasMore = result.HasMore
	l.page = page + 1
	l.metrics.RecordProductListFetch(metrics.ResultOK)
	return nil
}

// Products возвращает копию загруженных товаров.
func (l *List) Products() []domain.ProductSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ProductSummary(nil), l.products...)
}

// HasMore сообщает, есть ли ещё страницы.
func (l *List) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// Loading сообщает, идёт ли сейчас загрузка.
func (l *List) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Page возвращает номер следующей запрашиваемой страницы.
func (l *List) Page() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page
}
