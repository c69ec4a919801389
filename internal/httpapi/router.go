// Package httpapi собирает HTTP API витрины: корзина текущей сессии и листинг каталога.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Deps — зависимости роутера.
type Deps struct {
	Registry *cart.Registry
	Catalog  *catalog.Handler
	Logger   *log.Entry
	Metrics  *metrics.Metrics
	// SecureCookie выставляет Secure у cookie сессии (за TLS-терминатором).
	SecureCookie bool
	// RequestTimeout ограничивает обработку запроса; 0 — без ограничения.
	RequestTimeout time.Duration
}

// NewRouter возвращает http.Handler со всеми маршрутами API.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(requestMetrics(deps.Metrics))
	r.Use(middleware.Recoverer)
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}

	if deps.Catalog != nil {
		deps.Catalog.Routes(r)
	}

	if deps.Registry != nil {
		carts := &cartHandler{registry: deps.Registry, logger: logger}
		r.Route("/api/cart", func(r chi.Router) {
			r.Use(sessionCookie(deps.SecureCookie))
			r.Get("/", carts.get)
			r.Delete("/", carts.clear)
			r.Post("/items", carts.addItem)
			r.Patch("/items/{id}", carts.updateQuantity)
			r.Delete("/items/{id}", carts.removeItem)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
