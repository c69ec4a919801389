package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductsPath — путь endpoint листинга.
const ProductsPath = "/api/products"

// PageLister отдаёт страницу каталога.
type PageLister interface {
	ListPage(ctx context.Context, page, limit int) (domain.ProductPage, error)
}

// Handler обслуживает GET /api/products?page=&limit=.
type Handler struct {
	lister      PageLister
	defaultSize int
	logger      *log.Entry
}

// NewHandler создаёт обработчик; defaultSize используется, если limit не передан.
func NewHandler(lister PageLister, defaultSize int, logger *log.Entry) *Handler {
	if defaultSize <= 0 || defaultSize > domain.MaxPageSize {
		defaultSize = domain.DefaultPageSize
	}
	if logger == nil {
		logger = log.WithField("component", "catalog-http")
	}
	return &Handler{lister: lister, defaultSize: defaultSize, logger: logger}
}

// Routes регистрирует маршруты листинга в роутере.
func (h *Handler) Routes(r chi.Router) {
	r.Get(ProductsPath, h.listProducts)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := queryInt(r, "limit", h.defaultSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}

	result, err := h.lister.ListPage(r.Context(), page, limit)
	switch {
	case errors.Is(err, domain.ErrInvalidPage), errors.Is(err, domain.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.WithError(err).WithFields(log.Fields{"page": page, "limit": limit}).Error("failed to list products")
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt читает положительное целое из query; отсутствующий параметр даёт fallback.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, strconv.ErrRange
	}
	return value, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}
