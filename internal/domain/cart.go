package domain

import "github.com/shopspring/decimal"

// CartLineItem — одна позиция корзины, ключ позиции — ID.
type CartLineItem struct {
	// ID идентифицирует вариант товара внутри корзины (товар с разными опциями даёт разные ID).
	ID string `json:"id"`
	// Name фиксируется при первом добавлении и дальше не меняется.
	Name  string `json:"name"`
	Image string `json:"image"`
	// Price — цена за единицу на момент добавления, повторно не сверяется с каталогом.
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	// Options — свободное описание выбранных опций варианта.
	Options string `json:"options,omitempty"`
}

// CartState — упорядоченный набор позиций корзины в порядке добавления.
type CartState struct {
	Items []CartLineItem `json:"items"`
}

// Clone возвращает независимую копию состояния.
func (s CartState) Clone() CartState {
	if len(s.Items) == 0 {
		return CartState{Items: []CartLineItem{}}
	}
	items := make([]CartLineItem, len(s.Items))
	copy(items, s.Items)
	return CartState{Items: items}
}

// IndexOf возвращает позицию элемента с данным id или -1.
func (s CartState) IndexOf(id string) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// TotalItems — сумма количеств по всем позициям, 0 для пустой корзины.
func TotalItems(state CartState) int {
	total := 0
	for _, item := range state.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice — сумма price*quantity без округления; округляется только при отображении.
func TotalPrice(state CartState) decimal.Decimal {
	total := decimal.Zero
	for _, item := range state.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ValidateInvariants проверяет инварианты корзины и возвращает список замечаний.
// Стор их не применяет: нулевые и отрицательные количества допускаются вызывающей стороной.
func (s CartState) ValidateInvariants() []error {
	var errs []error

	seen := make(map[string]struct{}, len(s.Items))
	for _, item := range s.Items {
		if item.ID == "" {
			errs = append(errs, ErrCartItemIDRequired)
		}
		if _, dup := seen[item.ID]; dup {
			errs = append(errs, ErrCartItemDuplicate)
		}
		seen[item.ID] = struct{}{}
		if item.Quantity < 1 {
			errs = append(errs, ErrCartItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrCartItemPriceInvalid)
		}
	}

	return errs
}
