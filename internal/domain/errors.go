package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора позиции корзины.
	ErrCartItemIDRequired = errors.New("cart item id is required")
	// Ошибка повторяющегося идентификатора позиции.
	ErrCartItemDuplicate = errors.New("cart item id must be unique")
	// Ошибка при некорректном количестве позиции (< 1).
	ErrCartItemQtyInvalid = errors.New("cart item quantity must be at least one")
	// Ошибка, если цена позиции отрицательная.
	ErrCartItemPriceInvalid = errors.New("cart item price must be non-negative")
	// ErrKeyNotFound возвращается хранилищем, если по ключу ничего не сохранено.
	ErrKeyNotFound = errors.New("storage key not found")
	// ErrCorruptSnapshot — сохранённая корзина не читается; сессия стартует с пустой корзиной.
	ErrCorruptSnapshot = errors.New("persisted cart snapshot is corrupt")
	// ErrStorageUnavailable — хранилище не ответило; сохранённое состояние неизвестно.
	ErrStorageUnavailable = errors.New("storage is unavailable")
	// ErrStorageClosed — обращение к уже закрытому хранилищу.
	ErrStorageClosed = errors.New("storage is closed")
	// ErrSessionRequired — пустой идентификатор сессии корзины.
	ErrSessionRequired = errors.New("cart session id is required")
	// ErrInvalidPage — номер страницы каталога меньше единицы.
	ErrInvalidPage = errors.New("page must be greater than zero")
	// ErrInvalidLimit — размер страницы каталога вне допустимого диапазона.
	ErrInvalidLimit = errors.New("limit is out of range")
	// ErrProductIDRequired — товар без идентификатора.
	ErrProductIDRequired = errors.New("product id is required")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound проверяет, означает ли ошибка отсутствие ключа в хранилище.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
