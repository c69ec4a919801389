package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// NamespaceKey — фиксированный ключ, под которым хранится корзина.
	NamespaceKey = "cart-storage"

	snapshotVersion = 0
	keySeparator    = ":"
)

// persistedCart — формат записи в хранилище: {"state":{"items":[...]},"version":0}.
type persistedCart struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

type persistedState struct {
	Items []domain.CartLineItem `json:"items"`
}

// StorageKey возвращает ключ корзины для сессии; пустая сессия даёт сам namespace-ключ.
func StorageKey(sessionID string) string {
	if sessionID == "" {
		return NamespaceKey
	}
	return NamespaceKey + keySeparator + sessionID
}

// SessionIDFromKey выполняет обратное преобразование к StorageKey.
func SessionIDFromKey(key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, NamespaceKey), keySeparator)
}

// EncodeSnapshot сериализует состояние корзины.
func EncodeSnapshot(state domain.CartState) ([]byte, error) {
	items := state.Items
	if items == nil {
		items = []domain.CartLineItem{}
	}
	data, err := json.Marshal(persistedCart{
		State:   persistedState{Items: items},
		Version: snapshotVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot разбирает сохранённую корзину.
// Любая порча (битый JSON, неизвестная версия, дубликаты id) даёт ErrCorruptSnapshot.
func DecodeSnapshot(data []byte) (domain.CartState, error) {
	var payload persistedCart

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&payload); err != nil {
		return domain.CartState{}, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	if payload.Version > snapshotVersion || payload.Version < 0 {
		return domain.CartState{}, fmt.Errorf("%w: unsupported version %d", domain.ErrCorruptSnapshot, payload.Version)
	}

	state := domain.CartState{Items: payload.State.Items}
	if state.Items == nil {
		state.Items = []domain.CartLineItem{}
	}

	seen := make(map[string]struct{}, len(state.Items))
	for _, item := range state.Items {
		if item.ID == "" {
			return domain.CartState{}, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, domain.ErrCartItemIDRequired)
		}
		if _, dup := seen[item.ID]; dup {
			return domain.CartState{}, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, domain.ErrCartItemDuplicate)
		}
		seen[item.ID] = struct{}{}
	}

	return state, nil
}
