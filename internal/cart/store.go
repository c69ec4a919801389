package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Op — тип мутации корзины.
type Op string

const (
	OpAdd            Op = "add"
	OpRemove         Op = "remove"
	OpUpdateQuantity Op = "update_quantity"
	OpClear          Op = "clear"
)

// Change описывает применённую мутацию.
type Change struct {
	Key string
	// Seq — номер мутации в сторе, начиная с 1; listeners получают изменения строго по возрастанию Seq.
	Seq    uint64
	Op     Op
	ItemID string
	// Quantity — для add прибавленное количество, для update_quantity новое значение.
	Quantity int
	// State — снимок корзины сразу после мутации.
	State domain.CartState
}

// Listener получает уведомления о мутациях. Вызывается вне блокировки состояния,
// поэтому может читать стор, но не должен мутировать его: следующая мутация ждёт доставки текущей.
type Listener func(Change)

// Store — авторитетное состояние корзины одной сессии.
// Мутации атомарны относительно чтений; запись в хранилище идёт в фоне и не блокирует вызывающего.
type Store struct {
	key     string
	logger  *log.Entry
	metrics *metrics.Metrics

	mu        sync.RWMutex
	state     domain.CartState
	seq       uint64
	persister *persister

	// delivered — Seq последнего изменения, разосланного listeners.
	deliverMu   sync.Mutex
	deliverCond *sync.Cond
	delivered   uint64

	listenersMu    sync.RWMutex
	listeners      map[uint64]Listener
	nextListenerID uint64
}

// Open создаёт стор и засевает его сохранённым состоянием.
// Отсутствие, порча или недоступность сохранённой корзины не ошибка: сессия стартует с пустой корзиной.
// storage == nil означает корзину только в памяти.
func Open(ctx context.Context, key string, storage domain.KeyValueStorage, options ...Option) *Store {
	opts := resolveOptions(options)
	s := newStore(key, opts)

	if storage != nil {
		state, err := hydrate(ctx, storage, key, opts, s.logger)
		if err != nil {
			s.logger.WithError(err).Warn("failed to load persisted cart, starting empty")
		}
		s.state = state
		s.persister = newPersister(storage, key, opts)
	}

	return s
}

// Load создаёт стор, только если сохранённое состояние удалось прочитать.
// Отсутствующая или испорченная корзина даёт пустой стор; сбой хранилища возвращается
// как ErrStorageUnavailable, и стор не создаётся, чтобы пустое состояние не перезаписало сохранённое.
func Load(ctx context.Context, key string, storage domain.KeyValueStorage, options ...Option) (*Store, error) {
	opts := resolveOptions(options)
	s := newStore(key, opts)

	if storage != nil {
		state, err := hydrate(ctx, storage, key, opts, s.logger)
		if err != nil {
			return nil, err
		}
		s.state = state
		s.persister = newPersister(storage, key, opts)
	}

	return s, nil
}

func newStore(key string, opts StoreOptions) *Store {
	s := &Store{
		key:       key,
		logger:    opts.Logger.WithField("key", key),
		metrics:   opts.Metrics,
		state:     emptyState(),
		listeners: make(map[uint64]Listener),
	}
	s.deliverCond = sync.NewCond(&s.deliverMu)
	for _, listener := range opts.Listeners {
		s.Subscribe(listener)
	}
	return s
}

func emptyState() domain.CartState {
	return domain.CartState{Items: []domain.CartLineItem{}}
}

// hydrate читает сохранённую корзину. Ошибка возвращается только при сбое хранилища.
func hydrate(ctx context.Context, storage domain.KeyValueStorage, key string, opts StoreOptions, logger *log.Entry) (domain.CartState, error) {
	state, found, err := readState(ctx, storage, key, opts.PersistTimeout)
	switch {
	case err == nil && !found:
		opts.Metrics.RecordCartHydration(metrics.ResultEmpty)
		return state, nil
	case err == nil:
		opts.Metrics.RecordCartHydration(metrics.ResultRestored)
		return state, nil
	case errors.Is(err, domain.ErrCorruptSnapshot):
		opts.Metrics.RecordCartHydration(metrics.ResultCorrupt)
		logger.WithError(err).Warn("persisted cart is corrupt, starting empty")
		return emptyState(), nil
	default:
		opts.Metrics.RecordCartHydration(metrics.ResultError)
		return emptyState(), err
	}
}

// readState возвращает сохранённое состояние; отсутствие ключа даёт пустую корзину и found=false.
// Ошибки: ErrCorruptSnapshot для нечитаемого payload, ErrStorageUnavailable для сбоя хранилища.
func readState(ctx context.Context, storage domain.KeyValueStorage, key string, timeout time.Duration) (state domain.CartState, found bool, err error) {
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := storage.Get(loadCtx, key)
	switch {
	case domain.IsNotFound(err):
		return emptyState(), false, nil
	case err != nil:
		return emptyState(), false, fmt.Errorf("load cart %s: %w: %w", key, domain.ErrStorageUnavailable, err)
	}

	state, err = DecodeSnapshot(raw)
	if err != nil {
		return emptyState(), true, err
	}
	return state, true, nil
}

// Key возвращает ключ, под которым корзина хранится.
func (s *Store) Key() string {
	return s.key
}

// AddToCart увеличивает количество существующей позиции или добавляет новую в конец.
// У существующей позиции меняется только количество, остальные поля item игнорируются.
func (s *Store) AddToCart(item domain.CartLineItem) {
	s.mutate(Change{Op: OpAdd, ItemID: item.ID, Quantity: item.Quantity}, func(state *domain.CartState) bool {
		if idx := state.IndexOf(item.ID); idx >= 0 {
			state.Items[idx].Quantity += item.Quantity
			return true
		}
		state.Items = append(state.Items, item)
		return true
	})
}

// RemoveFromCart удаляет позицию; неизвестный id — no-op.
func (s *Store) RemoveFromCart(id string) {
	s.mutate(Change{Op: OpRemove, ItemID: id}, func(state *domain.CartState) bool {
		idx := state.IndexOf(id)
		if idx < 0 {
			return false
		}
		state.Items = append(state.Items[:idx], state.Items[idx+1:]...)
		return true
	})
}

// UpdateQuantity выставляет количество как есть: без ограничения снизу и без удаления на нуле.
func (s *Store) UpdateQuantity(id string, quantity int) {
	s.mutate(Change{Op: OpUpdateQuantity, ItemID: id, Quantity: quantity}, func(state *domain.CartState) bool {
		idx := state.IndexOf(id)
		if idx < 0 {
			return false
		}
		state.Items[idx].Quantity = quantity
		return true
	})
}

// ClearCart очищает корзину безусловно.
func (s *Store) ClearCart() {
	s.mutate(Change{Op: OpClear}, func(state *domain.CartState) bool {
		state.Items = []domain.CartLineItem{}
		return true
	})
}

// Snapshot возвращает копию текущего состояния.
func (s *Store) Snapshot() domain.CartState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// TotalItems — сумма количеств по текущему снимку.
func (s *Store) TotalItems() int {
	return domain.TotalItems(s.Snapshot())
}

// TotalPrice — сумма price*quantity по текущему снимку.
func (s *Store) TotalPrice() decimal.Decimal {
	return domain.TotalPrice(s.Snapshot())
}

// Subscribe регистрирует listener и возвращает функцию отписки.
func (s *Store) Subscribe(listener Listener) func() {
	s.listenersMu.Lock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Close дописывает последний снимок в хранилище и останавливает фоновую запись.
func (s *Store) Close(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	return s.persister.close(ctx)
}

// mutate применяет fn под блокировкой. Запись планируется там же, чтобы снимки уходили в порядке мутаций.
func (s *Store) mutate(change Change, fn func(state *domain.CartState) bool) {
	s.metrics.RecordCartMutation(string(change.Op))

	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	s.seq++
	change.Seq = s.seq
	snapshot := s.state.Clone()
	if s.persister != nil {
		s.persister.schedule(snapshot)
	}
	s.mu.Unlock()

	change.Key = s.key
	change.State = snapshot
	s.deliver(change)
}

// deliver ждёт, пока разошлются изменения с меньшим Seq, и уведомляет listeners.
func (s *Store) deliver(change Change) {
	s.deliverMu.Lock()
	for s.delivered+1 != change.Seq {
		s.deliverCond.Wait()
	}
	s.deliverMu.Unlock()

	defer func() {
		s.deliverMu.Lock()
		s.delivered = change.Seq
		s.deliverCond.Broadcast()
		s.deliverMu.Unlock()
	}()
	s.notify(change)
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(change)
	}
}
