package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	evictReasonIdle     = "idle"
	evictReasonCapacity = "capacity"

	minSweepInterval = 10 * time.Millisecond
)

// session — открытый стор и учёт его использования.
type session struct {
	store    *Store
	lastUsed time.Time
	inUse    int

	// evicting выставляется под блокировкой реестра; evicted закрывается, когда стор дописан.
	// Пока выселение не завершено, сессия заново не открывается.
	evicting bool
	evicted  chan struct{}
}

type victim struct {
	id   string
	sess *session
}

// Registry держит сторы корзин по сессиям и лениво открывает их при первом обращении.
// Простаивающие сессии дописываются в хранилище и выгружаются из памяти.
type Registry struct {
	storage      domain.KeyValueStorage
	options      []Option
	logger       *log.Entry
	metrics      *metrics.Metrics
	readTimeout  time.Duration
	flushTimeout time.Duration
	idleTTL      time.Duration
	maxSessions  int
	now          func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewRegistry создаёт реестр; options применяются к каждому открываемому стору.
// При WithSessionIdleTTL реестр запускает фоновую очистку, которую останавливает Close.
func NewRegistry(storage domain.KeyValueStorage, options ...Option) *Registry {
	opts := resolveOptions(options)
	r := &Registry{
		storage:      storage,
		options:      options,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		readTimeout:  opts.PersistTimeout,
		flushTimeout: 2 * opts.PersistTimeout,
		idleTTL:      opts.SessionIdleTTL,
		maxSessions:  opts.MaxSessions,
		now:          opts.Clock,
		sessions:     make(map[string]*session),
	}

	if r.idleTTL > 0 {
		interval := r.idleTTL / 2
		if interval < minSweepInterval {
			interval = minSweepInterval
		}
		r.stopSweep = make(chan struct{})
		r.sweepDone = make(chan struct{})
		go r.sweep(interval)
	}
	return r
}

// Get возвращает стор сессии, открывая его при первом обращении.
// Параллельные первые обращения к одной сессии получают один и тот же стор.
// Стор может быть выселен сразу после возврата; серию операций выполняйте через Do.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Store, error) {
	sess, err := r.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.release(sess)
	return sess.store, nil
}

// Do выполняет fn со стором сессии; пока fn работает, сессия не выселяется.
func (r *Registry) Do(ctx context.Context, sessionID string, fn func(*Store)) error {
	sess, err := r.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer r.release(sess)

	fn(sess.store)
	return nil
}

// Peek возвращает снимок корзины без открытия сессии.
// Для неоткрытой сессии состояние читается из хранилища; испорченная корзина показывается пустой.
func (r *Registry) Peek(ctx context.Context, sessionID string) (domain.CartState, error) {
	if sessionID == "" {
		return domain.CartState{}, domain.ErrSessionRequired
	}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return domain.CartState{}, domain.ErrStorageClosed
		}
		sess, ok := r.sessions[sessionID]
		if ok && !sess.evicting {
			sess.lastUsed = r.now()
			store := sess.store
			r.mu.Unlock()
			return store.Snapshot(), nil
		}
		r.mu.Unlock()

		if !ok {
			break
		}
		if err := waitEvicted(ctx, sess); err != nil {
			return domain.CartState{}, err
		}
	}

	if r.storage == nil {
		return emptyState(), nil
	}
	state, _, err := readState(ctx, r.storage, StorageKey(sessionID), r.readTimeout)
	if errors.Is(err, domain.ErrCorruptSnapshot) {
		r.logger.WithError(err).WithField("session_id", sessionID).Warn("persisted cart is corrupt, showing empty cart")
		return emptyState(), nil
	}
	return state, err
}

func (r *Registry) acquire(ctx context.Context, sessionID string) (*session, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionRequired
	}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, domain.ErrStorageClosed
		}
		sess, ok := r.sessions[sessionID]
		if ok && !sess.evicting {
			sess.inUse++
			sess.lastUsed = r.now()
			r.mu.Unlock()
			return sess, nil
		}
		r.mu.Unlock()

		if ok {
			if err := waitEvicted(ctx, sess); err != nil {
				return nil, err
			}
			continue
		}

		if _, err, _ := r.group.Do(sessionID, func() (any, error) {
			return nil, r.open(ctx, sessionID)
		}); err != nil {
			return nil, err
		}
	}
}

func (r *Registry) release(sess *session) {
	r.mu.Lock()
	sess.inUse--
	sess.lastUsed = r.now()
	r.mu.Unlock()
}

// open загружает и регистрирует стор сессии. Загрузка не зависит от отмены ctx:
// её результат разделяют все, кто ждёт эту сессию.
// Сбой хранилища возвращается вызывающему, и в реестре ничего не остаётся.
func (r *Registry) open(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	_, exists := r.sessions[sessionID]
	r.mu.Unlock()
	if exists {
		return nil
	}

	loadCtx := context.WithoutCancel(ctx)
	store, err := Load(loadCtx, StorageKey(sessionID), r.storage, r.options...)
	if err != nil {
		r.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to open cart session")
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = store.Close(loadCtx)
		return domain.ErrStorageClosed
	}
	victims := r.makeRoomLocked()
	r.sessions[sessionID] = &session{store: store, lastUsed: r.now(), evicted: make(chan struct{})}
	r.mu.Unlock()

	r.metrics.RecordSessionOpened()
	r.logger.WithField("session_id", sessionID).Debug("cart session opened")

	r.evict(victims, evictReasonCapacity)
	return nil
}

// makeRoomLocked помечает к выселению самые давние свободные сессии, чтобы вместе с новой их было не больше maxSessions.
// Занятые сессии не выселяются, поэтому лимит мягкий.
func (r *Registry) makeRoomLocked() []victim {
	if r.maxSessions <= 0 {
		return nil
	}

	live := 0
	candidates := make([]victim, 0)
	for id, sess := range r.sessions {
		if sess.evicting {
			continue
		}
		live++
		if sess.inUse == 0 {
			candidates = append(candidates, victim{id: id, sess: sess})
		}
	}

	excess := live + 1 - r.maxSessions
	if excess <= 0 {
		return nil
	}
	if excess > len(candidates) {
		excess = len(candidates)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sess.lastUsed.Before(candidates[j].sess.lastUsed)
	})

	victims := candidates[:excess]
	for _, v := range victims {
		v.sess.evicting = true
	}
	return victims
}

// EvictIdle дописывает и выгружает сессии, не использованные дольше idle TTL. Возвращает число выселенных.
func (r *Registry) EvictIdle() int {
	if r.idleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0
	}
	deadline := r.now().Add(-r.idleTTL)
	var victims []victim
	for id, sess := range r.sessions {
		if sess.evicting || sess.inUse > 0 || sess.lastUsed.After(deadline) {
			continue
		}
		sess.evicting = true
		victims = append(victims, victim{id: id, sess: sess})
	}
	r.mu.Unlock()

	r.evict(victims, evictReasonIdle)
	return len(victims)
}

func (r *Registry) evict(victims []victim, reason string) {
	for _, v := range victims {
		ctx, cancel := context.WithTimeout(context.Background(), r.flushTimeout)
		if err := v.sess.store.Close(ctx); err != nil {
			r.logger.WithError(err).WithField("session_id", v.id).Warn("failed to flush evicted cart session")
		}
		cancel()

		r.mu.Lock()
		if r.sessions[v.id] == v.sess {
			delete(r.sessions, v.id)
		}
		r.mu.Unlock()
		close(v.sess.evicted)

		r.metrics.RecordSessionClosed()
		r.metrics.RecordSessionEvicted(reason)
		r.logger.WithFields(log.Fields{"session_id": v.id, "reason": reason}).Debug("cart session evicted")
	}
}

func (r *Registry) sweep(interval time.Duration) {
	defer close(r.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopSweep:
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

func waitEvicted(ctx context.Context, sess *session) error {
	select {
	case <-sess.evicted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len возвращает количество сессий в памяти.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close останавливает очистку и закрывает все сторы, дописывая незаписанные снимки.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	if r.stopSweep != nil {
		close(r.stopSweep)
		<-r.sweepDone
	}

	var errs []error
	for sessionID, sess := range sessions {
		// Выселяемую сессию дописывает evict; дожидаемся его.
		if sess.evicting {
			if err := waitEvicted(ctx, sess); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := sess.store.Close(ctx); err != nil {
			errs = append(errs, err)
			r.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to flush cart session")
		}
		r.metrics.RecordSessionClosed()
	}
	return errors.Join(errs...)
}
