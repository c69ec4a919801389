package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const maxBodyBytes = 64 << 10

// CartView — представление корзины в ответах API.
type CartView struct {
	Items      []domain.CartLineItem `json:"items"`
	TotalItems int                   `json:"totalItems"`
	TotalPrice decimal.Decimal       `json:"totalPrice"`
	// TotalPriceDisplay — итог, округлённый до копеек только для показа.
	TotalPriceDisplay string `json:"totalPriceDisplay"`
}

func newCartView(state domain.CartState) CartView {
	total := domain.TotalPrice(state)
	return CartView{
		Items:             state.Items,
		TotalItems:        domain.TotalItems(state),
		TotalPrice:        total,
		TotalPriceDisplay: total.StringFixed(2),
	}
}

func emptyCartView() CartView {
	return newCartView(domain.CartState{Items: []domain.CartLineItem{}})
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type cartHandler struct {
	registry *cart.Registry
	logger   *log.Entry
}

// get читает корзину, не открывая сессию в реестре.
func (h *cartHandler) get(w http.ResponseWriter, r *http.Request) {
	if sessionIssued(r.Context()) {
		writeJSON(w, http.StatusOK, emptyCartView())
		return
	}

	state, err := h.registry.Peek(r.Context(), SessionID(r.Context()))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(state))
}

func (h *cartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var item domain.CartLineItem
	if err := decodeBody(r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if item.ID == "" {
		writeError(w, http.StatusBadRequest, domain.ErrCartItemIDRequired.Error())
		return
	}

	h.mutate(w, r, func(store *cart.Store) {
		store.AddToCart(item)
	})
}

func (h *cartHandler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	id := chi.URLParam(r, "id")
	h.mutateExisting(w, r, func(store *cart.Store) {
		store.UpdateQuantity(id, *req.Quantity)
	})
}

func (h *cartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutateExisting(w, r, func(store *cart.Store) {
		store.RemoveFromCart(id)
	})
}

func (h *cartHandler) clear(w http.ResponseWriter, r *http.Request) {
	h.mutateExisting(w, r, func(store *cart.Store) {
		store.ClearCart()
	})
}

// mutateExisting — мутация, которая для только что выданной сессии ничего не меняет:
// её корзина пуста, поэтому сессия не открывается.
func (h *cartHandler) mutateExisting(w http.ResponseWriter, r *http.Request, fn func(*cart.Store)) {
	if sessionIssued(r.Context()) {
		writeJSON(w, http.StatusOK, emptyCartView())
		return
	}
	h.mutate(w, r, fn)
}

// mutate применяет fn к стору сессии и отвечает состоянием корзины сразу после мутации.
func (h *cartHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(*cart.Store)) {
	var view CartView
	err := h.registry.Do(r.Context(), SessionID(r.Context()), func(store *cart.Store) {
		fn(store)
		view = newCartView(store.Snapshot())
	})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *cartHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrStorageClosed):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		h.logger.WithError(err).Warn("cart storage is unavailable")
		writeError(w, http.StatusServiceUnavailable, "cart storage is unavailable, retry later")
	case errors.Is(err, domain.ErrSessionRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).Error("failed to open cart session")
		writeError(w, http.StatusInternalServerError, "failed to open cart")
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
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
