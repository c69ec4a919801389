package productlist_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/productlist"
)

type fetchCall struct {
	page  int
	limit int
}

// stubFetcher отдаёт заранее заданные ответы и запоминает запросы.
type stubFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	pages   map[int]domain.ProductPage
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *stubFetcher) FetchPage(_ context.Context, page, limit int) (domain.ProductPage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fetchCall{page: page, limit: limit})
	err := s.err
	result := s.pages[page]
	block := s.block
	started := s.started
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return domain.ProductPage{}, err
	}
	return result, nil
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubFetcher) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func products(prefix string, n int) []domain.ProductSummary {
	result := make([]domain.ProductSummary, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, domain.ProductSummary{
			ID:    fmt.Sprintf("%s-%d", prefix, i),
			Name:  fmt.Sprintf("Product %s-%d", prefix, i),
			Price: decimal.NewFromInt(int64(i + 1)),
			Slug:  fmt.Sprintf("%s-%d", prefix, i),
		})
	}
	return result
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("test", "productlist")
}

func TestLoadMore_AppendsNextPage(t *testing.T) {
	fetcher := &stubFetcher{pages: map[int]domain.ProductPage{
		2: {Products: products("p2", 3), HasMore: true},
		3: {Products: products("p3", 1), HasMore: false},
	}}
	list := productlist.New(products("p1", 3), true, fetcher, productlist.WithPageSize(3), productlist.WithLogger(quietLogger()))

	assert.Equal(t, 2, list.Page())

	require.NoError(t, list.LoadMore(context.Background()))
	assert.Len(t, list.Products(), 6)
	assert.True(t, list.HasMore())
	assert.Equal(t, 3, list.Page())

	require.NoError(t, list.LoadMore(context.Background()))
	assert.Len(t, list.Products(), 7)
	assert.False(t, list.HasMore())
	assert.Equal(t, 4, list.Page())
	assert.False(t, list.Loading())

	assert.Equal(t, []fetchCall{{page: 2, limit: 3}, {page: 3, limit: 3}}, fetcher.calls)
}

func TestLoadMore_NoMorePagesIsNoop(t *testing.T) {
	fetcher := &stubFetcher{}
	list := productlist.New(products("p1", 2), false, fetcher, productlist.WithLogger(quietLogger()))

	require.NoError(t, list.LoadMore(context.Background()))

	assert.Equal(t, 0, fetcher.callCount())
	assert.Equal(t, 2, list.Page())
	assert.Len(t, list.Products(), 2)
}

func TestLoadMore_WhileLoadingIsNoop(t *testing.T) {
	fetcher := &stubFetcher{
		pages:   map[int]domain.ProductPage{2: {Products: products("p2", 2), HasMore: true}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	list := productlist.New(nil, true, fetcher, productlist.WithLogger(quietLogger()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- list.LoadMore(context.Background())
	}()
	<-fetcher.started
	require.True(t, list.Loading())

	// Повторный вызов во время загрузки не отправляет запрос и не двигает page.
	require.NoError(t, list.LoadMore(context.Background()))
	assert.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, 2, list.Page())

	close(fetcher.block)
	require.NoError(t, <-errCh)
	assert.Equal(t, 3, list.Page())
	assert.False(t, list.Loading())
}

func TestLoadMore_FailureLeavesStateAndAllowsRetry(t *testing.T) {
	fetcher := &stubFetcher{
		pages: map[int]domain.ProductPage{2: {Products: products("p2", 2), HasMore: false}},
		err:   errors.New("listing endpoint unavailable"),
	}
	initial := products("p1", 2)
	list := productlist.New(initial, true, fetcher, productlist.WithLogger(quietLogger()))

	err := list.LoadMore(context.Background())
	require.Error(t, err)
	assert.Equal(t, initial, list.Products())
	assert.True(t, list.HasMore())
	assert.Equal(t, 2, list.Page())
	assert.False(t, list.Loading())

	fetcher.setErr(nil)
	require.NoError(t, list.LoadMore(context.Background()))
	assert.Len(t, list.Products(), 4)
	assert.False(t, list.HasMore())
	assert.Equal(t, 3, list.Page())
	assert.Equal(t, 2, fetcher.callCount())
}

func TestLoadMore_ConcurrentCallersIssueSingleRequest(t *testing.T) {
	fetcher := &stubFetcher{
		pages: map[int]domain.ProductPage{2: {Products: products("p2", 1), HasMore: false}},
		block: make(chan struct{}),
	}
	list := productlist.New(nil, true, fetcher, productlist.WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = list.LoadMore(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, testTimeout, testTick)
	close(fetcher.block)
	wg.Wait()

	assert.Equal(t, 1, fetcher.callCount())
	assert.Len(t, list.Products(), 1)
}

func TestNew_DefaultsAndCopiesInitial(t *testing.T) {
	initial := products("p1", 1)
	list := productlist.New(initial, true, &stubFetcher{}, productlist.WithPageSize(-1))

	initial[0].Name = "mutated"
	assert.Equal(t, "Product p1-0", list.Products()[0].Name)

	got := list.Products()
	got[0].Name = "mutated too"
	assert.Equal(t, "Product p1-0", list.Products()[0].Name)
}
