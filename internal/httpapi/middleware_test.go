package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

func TestRequestMetrics_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegisterer(reg)
	s := newTestServer(t)
	s.handler = NewRouter(Deps{Registry: s.registry, Logger: quietLogger(), Metrics: m})

	s.do(http.MethodPost, "/api/cart/items", shirt)
	s.do(http.MethodDelete, "/api/cart/items/shirt-m", "")
	s.do(http.MethodDelete, "/api/cart/items/other", "")

	families, err := reg.Gather()
	require.NoError(t, err)

	routes := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "storefront_http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" {
					routes[label.GetValue()] = true
				}
			}
		}
	}

	assert.True(t, routes["/api/cart/items/{id}"], "ожидался шаблон маршрута, получено %v", routes)
	assert.False(t, routes["/api/cart/items/shirt-m"])
	assert.Positive(t, testutil.CollectAndCount(reg, "storefront_http_requests_total"))
}

func TestRecoverer_TurnsPanicInto500(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := requestLogger(quietLogger())(middleware.Recoverer(panicking))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessionID_EmptyWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, SessionID(req.Context()))
}
